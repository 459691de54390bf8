package models

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

// DataType is the closed set of upstream stream kinds.
type DataType string

const (
	DataTypeTicker    DataType = "ticker"
	DataTypeOrderbook DataType = "orderbook"
	DataTypeTrade     DataType = "trade"
)

// Valid reports whether d is one of the supported stream kinds.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeTicker, DataTypeOrderbook, DataTypeTrade:
		return true
	}
	return false
}

// MSubscription identifies one logical interest. Symbols is an ordered set.
type MSubscription struct {
	DataType DataType `json:"dataType"`
	Symbols  []string `json:"symbols"`
}

// NewSubscription builds a subscription, dropping empty and repeated codes
// while keeping first-seen order.
func NewSubscription(dataType DataType, symbols []string) MSubscription {
	seen := make(map[string]struct{}, len(symbols))
	ordered := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		ordered = append(ordered, s)
	}
	return MSubscription{DataType: dataType, Symbols: ordered}
}

// -----------------------------------------------------------------------------
// Wire frames
// -----------------------------------------------------------------------------

// MControlCommand is the browser -> relay control frame as it appears on the wire.
type MControlCommand struct {
	Type     string   `json:"type"`
	DataType string   `json:"dataType,omitempty"`
	Symbols  []string `json:"symbols,omitempty"`
}

// MUpstreamTicket and MUpstreamRequest form the exchange subscribe frame:
// [ {"ticket": "..."}, {"type": "...", "codes": [...]} ]
type MUpstreamTicket struct {
	Ticket string `json:"ticket"`
}

type MUpstreamRequest struct {
	Type  string   `json:"type"`
	Codes []string `json:"codes"`
}
