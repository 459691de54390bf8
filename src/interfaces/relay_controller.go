package interfaces

import "market-relay/src/models"

// -----------------------------------------------------------------------------
// IRelayController exposes hub introspection to the REST and gRPC surfaces.
// -----------------------------------------------------------------------------

type IRelayController interface {
	Status() models.MRelayStatus

	// Disconnect force-closes one browser session. It reports whether the
	// session existed.
	Disconnect(id string) bool
}
