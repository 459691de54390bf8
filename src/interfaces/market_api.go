package interfaces

import (
	"context"
	"encoding/json"

	"market-relay/src/models"
)

// -----------------------------------------------------------------------------
// IMarketAPI is the REST side of a market data provider: either the exchange
// itself or the relay's /api surface, which exposes the same shapes.
// -----------------------------------------------------------------------------

type IMarketAPI interface {

	// Markets lists every tradable market.
	Markets(ctx context.Context) ([]models.MMarket, error)

	// -----------------------------------------------------------------------------

	// Tickers returns the current ticker for each market code, in one request.
	Tickers(ctx context.Context, codes []string) ([]models.MMarketRecord, error)

	// -----------------------------------------------------------------------------

	// Orderbook returns the raw orderbook payload for one market code.
	Orderbook(ctx context.Context, code string) (json.RawMessage, error)
}
