package server

import (
	"encoding/json"
	"fmt"

	"market-relay/src/helpers"
	"market-relay/src/models"
)

// -----------------------------------------------------------------------------

type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameSubscribe
	FrameUnsubscribe
)

func (k FrameKind) String() string {
	switch k {
	case FrameSubscribe:
		return "subscribe"
	case FrameUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// ControlFrame is a decoded browser control message. Subscription is set only
// for FrameSubscribe; Type keeps the raw type for unknown frames.
type ControlFrame struct {
	Kind         FrameKind
	Type         string
	Subscription models.MSubscription
}

// -----------------------------------------------------------------------------

// ParseControlFrame decodes a control message. A subscribe without dataType
// means ticker, and without symbols means defaultSymbols. Non-JSON input and
// unsupported data types are DecodeErrors.
func ParseControlFrame(data []byte, defaultSymbols []string) (ControlFrame, error) {
	var cmd models.MControlCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return ControlFrame{}, helpers.NewDecodeError("malformed control frame", err)
	}

	switch cmd.Type {
	case "subscribe":
		dataType := models.DataType(cmd.DataType)
		if dataType == "" {
			dataType = models.DataTypeTicker
		}
		if !dataType.Valid() {
			return ControlFrame{Kind: FrameSubscribe, Type: cmd.Type},
				helpers.NewDecodeError(fmt.Sprintf("unsupported dataType %q", cmd.DataType), nil)
		}

		sub := models.NewSubscription(dataType, cmd.Symbols)
		if len(sub.Symbols) == 0 {
			sub = models.NewSubscription(dataType, defaultSymbols)
		}
		return ControlFrame{Kind: FrameSubscribe, Type: cmd.Type, Subscription: sub}, nil

	case "unsubscribe":
		return ControlFrame{Kind: FrameUnsubscribe, Type: cmd.Type}, nil

	default:
		return ControlFrame{Kind: FrameUnknown, Type: cmd.Type}, nil
	}
}
