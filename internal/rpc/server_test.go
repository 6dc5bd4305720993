package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"commerce-sync-engine/internal/classifier"
	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/queue"
	"commerce-sync-engine/internal/service"
	"commerce-sync-engine/pkg/jwt"
)

const secret = "rpc-test-secret"

func startServer(t *testing.T, q *queue.SyncQueue) *IngestClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, NewServer(service.NewIngestService(classifier.New(), q), secret))
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
	return NewIngestClient(conn)
}

func withToken(t *testing.T, clientID string, role domain.Role) context.Context {
	t.Helper()
	tok, err := jwt.GenerateToken(clientID, string(role), time.Hour, secret)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
}

func event(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	base := map[string]interface{}{
		"type":       "update",
		"entityType": "product",
		"entityId":   "P1",
		"storeId":    "s1",
		"timestamp":  float64(1709294400000),
		"data":       map[string]interface{}{"price": 9.5},
	}
	for k, v := range fields {
		base[k] = v
	}
	s, err := structpb.NewStruct(base)
	require.NoError(t, err)
	return s
}

func TestIngest_Accepted(t *testing.T) {
	q := queue.New(10)
	client := startServer(t, q)

	out, err := client.Ingest(withToken(t, "shopify", domain.RoleConnector), event(t, nil))
	require.NoError(t, err)
	assert.Equal(t, true, out.AsMap()["accepted"])
	assert.NotEmpty(t, out.AsMap()["eventId"])

	batch := q.DrainBatch(1)
	require.Len(t, batch, 1)
	assert.Equal(t, "shopify", batch[0].SourcePlatform)
	assert.Equal(t, int64(1709294400000), batch[0].Timestamp.UnixMilli())
	assert.Equal(t, 9.5, batch[0].Payload["price"])
}

func TestIngest_Errors(t *testing.T) {
	q := queue.New(10)
	client := startServer(t, q)

	tests := []struct {
		name string
		ctx  context.Context
		in   *structpb.Struct
		code codes.Code
	}{
		{name: "no token", ctx: context.Background(), in: event(t, nil), code: codes.Unauthenticated},
		{name: "operator token", ctx: withToken(t, "ops", domain.RoleOperator), in: event(t, nil), code: codes.PermissionDenied},
		{name: "malformed", ctx: withToken(t, "shopify", domain.RoleConnector), in: event(t, map[string]interface{}{"entityId": ""}), code: codes.InvalidArgument},
		{name: "wrong platform", ctx: withToken(t, "shopify", domain.RoleConnector), in: event(t, map[string]interface{}{"platform": "magento"}), code: codes.PermissionDenied},
		{name: "bad field type", ctx: withToken(t, "shopify", domain.RoleConnector), in: event(t, map[string]interface{}{"timestamp": "soon"}), code: codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Ingest(tt.ctx, tt.in)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
	assert.Equal(t, 0, q.Len())
}
