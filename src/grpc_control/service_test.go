package grpc_control

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"market-relay/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeRelay struct {
	mu           sync.Mutex
	sessions     []models.MSessionStatus
	disconnected []string
}

func (f *fakeRelay) Status() models.MRelayStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := models.MRelayStatus{Connections: len(f.sessions), Sessions: append([]models.MSessionStatus{}, f.sessions...)}
	for _, s := range f.sessions {
		if s.State == "streaming" {
			st.Streaming++
		}
	}
	return st
}

func (f *fakeRelay) Disconnect(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.sessions {
		if s.ID == id {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			f.disconnected = append(f.disconnected, id)
			return true
		}
	}
	return false
}

func startControl(t *testing.T, relay *fakeRelay) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv, _ := NewServer(NewControlService(relay, nil), nil)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGetStatusRoundTrip(t *testing.T) {
	connectedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sub := models.NewSubscription(models.DataTypeTicker, []string{"KRW-BTC"})
	relay := &fakeRelay{sessions: []models.MSessionStatus{
		{ID: "a", State: "streaming", RemoteAddr: "127.0.0.1:5000", ConnectedAt: connectedAt, Subscription: &sub},
		{ID: "b", State: "connected", RemoteAddr: "127.0.0.1:5001", ConnectedAt: connectedAt.Add(time.Second)},
	}}
	client := NewControlClient(startControl(t, relay))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := client.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Connections)
	assert.Equal(t, 1, st.Streaming)
	require.Len(t, st.Sessions, 2)
	assert.Equal(t, "a", st.Sessions[0].ID)
	assert.True(t, connectedAt.Equal(st.Sessions[0].ConnectedAt))
	require.NotNil(t, st.Sessions[0].Subscription)
	assert.Equal(t, sub, *st.Sessions[0].Subscription)
	assert.Nil(t, st.Sessions[1].Subscription)
}

func TestDisconnectSession(t *testing.T) {
	relay := &fakeRelay{sessions: []models.MSessionStatus{{ID: "a", State: "connected"}}}
	client := NewControlClient(startControl(t, relay))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.DisconnectSession(ctx, "a"))
	assert.Equal(t, []string{"a"}, relay.disconnected)

	err := client.DisconnectSession(ctx, "a")
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = client.DisconnectSession(ctx, "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealthService(t *testing.T) {
	conn := startControl(t, &fakeRelay{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
