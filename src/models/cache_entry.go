package models

import "encoding/json"

// MCacheEntry is the envelope stored in the durable key-value store.
// Timestamp is Unix milliseconds.
type MCacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}
