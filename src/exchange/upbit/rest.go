package upbit

import (
	"context"
	"encoding/json"
	"strings"

	"market-relay/src/helpers"
	"market-relay/src/interfaces"
	"market-relay/src/models"
)

// -----------------------------------------------------------------------------

// Endpoints describes where a provider serves its REST resources. Ticker and
// orderbook take a comma-separated "markets" query parameter.
type Endpoints struct {
	Markets       string
	MarketsParams map[string]string
	Ticker        string
	Orderbook     string
}

// UpbitEndpoints are relative to https://api.upbit.com/v1.
var UpbitEndpoints = Endpoints{
	Markets:       "/market/all",
	MarketsParams: map[string]string{"isDetails": "false"},
	Ticker:        "/ticker",
	Orderbook:     "/orderbook",
}

// RelayEndpoints are relative to the relay's /api prefix.
var RelayEndpoints = Endpoints{
	Markets:   "/markets",
	Ticker:    "/ticker",
	Orderbook: "/orderbook",
}

// -----------------------------------------------------------------------------

// RestClient implements interfaces.IMarketAPI over a network manager.
type RestClient struct {
	baseURL   string
	endpoints Endpoints
	network   interfaces.INetworkManager
}

func NewRestClient(baseURL string, endpoints Endpoints, network interfaces.INetworkManager) *RestClient {
	return &RestClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: endpoints,
		network:   network,
	}
}

// -----------------------------------------------------------------------------

func (c *RestClient) Markets(ctx context.Context) ([]models.MMarket, error) {
	body, err := c.network.Get(ctx, c.baseURL+c.endpoints.Markets, c.endpoints.MarketsParams)
	if err != nil {
		return nil, err
	}

	var markets []models.MMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, helpers.NewDecodeError("invalid market list", err)
	}
	return markets, nil
}

// -----------------------------------------------------------------------------

func (c *RestClient) Tickers(ctx context.Context, codes []string) ([]models.MMarketRecord, error) {
	if len(codes) == 0 {
		return []models.MMarketRecord{}, nil
	}

	params := map[string]string{"markets": strings.Join(codes, ",")}
	body, err := c.network.Get(ctx, c.baseURL+c.endpoints.Ticker, params)
	if err != nil {
		return nil, err
	}

	var records []models.MMarketRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, helpers.NewDecodeError("invalid ticker list", err)
	}
	return records, nil
}

// -----------------------------------------------------------------------------

func (c *RestClient) Orderbook(ctx context.Context, code string) (json.RawMessage, error) {
	params := map[string]string{"markets": code}
	body, err := c.network.Get(ctx, c.baseURL+c.endpoints.Orderbook, params)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, helpers.NewDecodeError("invalid orderbook", nil)
	}
	return json.RawMessage(body), nil
}
