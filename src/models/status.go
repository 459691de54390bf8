package models

import "time"

// -----------------------------------------------------------------------------
// Relay status (REST /api/status and gRPC GetStatus)
// -----------------------------------------------------------------------------

type MSessionStatus struct {
	ID           string         `json:"id"`
	State        string         `json:"state"`
	RemoteAddr   string         `json:"remote_addr"`
	ConnectedAt  time.Time      `json:"connected_at"`
	Subscription *MSubscription `json:"subscription,omitempty"`
}

type MRelayStatus struct {
	Connections int              `json:"connections"`
	Streaming   int              `json:"streaming"`
	Sessions    []MSessionStatus `json:"sessions"`
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

const (
	ServiceConnected    = "connected"
	ServiceDisconnected = "disconnected"
	ServiceDisabled     = "disabled"
)

type MServicesHealth struct {
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

type MHealth struct {
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Connections int             `json:"connections"`
	Services    MServicesHealth `json:"services"`
}
