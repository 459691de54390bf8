package server

import (
	"testing"

	"market-relay/src/helpers"
	"market-relay/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseControlFrame(t *testing.T) {
	defaults := []string{"KRW-BTC"}

	tests := []struct {
		name    string
		input   string
		kind    FrameKind
		sub     models.MSubscription
		wantErr bool
	}{
		{
			name:  "full subscribe",
			input: `{"type":"subscribe","dataType":"trade","symbols":["KRW-ETH","KRW-XRP"]}`,
			kind:  FrameSubscribe,
			sub:   models.MSubscription{DataType: models.DataTypeTrade, Symbols: []string{"KRW-ETH", "KRW-XRP"}},
		},
		{
			name:  "defaults",
			input: `{"type":"subscribe"}`,
			kind:  FrameSubscribe,
			sub:   models.MSubscription{DataType: models.DataTypeTicker, Symbols: []string{"KRW-BTC"}},
		},
		{
			name:  "empty symbols fall back",
			input: `{"type":"subscribe","dataType":"orderbook","symbols":[]}`,
			kind:  FrameSubscribe,
			sub:   models.MSubscription{DataType: models.DataTypeOrderbook, Symbols: []string{"KRW-BTC"}},
		},
		{
			name:  "duplicate symbols collapse",
			input: `{"type":"subscribe","symbols":["KRW-ETH","KRW-ETH",""]}`,
			kind:  FrameSubscribe,
			sub:   models.MSubscription{DataType: models.DataTypeTicker, Symbols: []string{"KRW-ETH"}},
		},
		{
			name:  "unsubscribe",
			input: `{"type":"unsubscribe"}`,
			kind:  FrameUnsubscribe,
		},
		{
			name:  "unknown type",
			input: `{"type":"hello"}`,
			kind:  FrameUnknown,
		},
		{
			name:    "unsupported data type",
			input:   `{"type":"subscribe","dataType":"candle"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `subscribe please`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseControlFrame([]byte(tt.input), defaults)
			if tt.wantErr {
				var de *helpers.DecodeError
				assert.ErrorAs(t, err, &de)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, frame.Kind)
			if tt.kind == FrameSubscribe {
				assert.Equal(t, tt.sub, frame.Subscription)
			}
		})
	}
}

func TestFrameKindString(t *testing.T) {
	assert.Equal(t, "subscribe", FrameSubscribe.String())
	assert.Equal(t, "unsubscribe", FrameUnsubscribe.String())
	assert.Equal(t, "unknown", FrameUnknown.String())
}
