package models

// MMarket is one entry of the exchange market listing.
type MMarket struct {
	Market      string `json:"market"`
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name,omitempty"`
}

// MCoinInfo is the client-side view of a market (e.g. BTCKRW / KRW-BTC).
type MCoinInfo struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Market string `json:"market"`
}

// MMarketRecord holds the latest known ticker fields for one market, keyed by
// the exchange's JSON field names (market, trade_price, change_rate, ...).
type MMarketRecord map[string]interface{}

// Market returns the market code of the record, or "".
func (r MMarketRecord) Market() string {
	if m, ok := r["market"].(string); ok {
		return m
	}
	return ""
}

// Clone returns a shallow copy safe to hand to readers.
func (r MMarketRecord) Clone() MMarketRecord {
	out := make(MMarketRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
