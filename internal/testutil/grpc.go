package testutil

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// DialInProcess serves srv over an in-memory listener and returns a client
// connection to it.
//
// Precondition: every service must already be registered on srv.
// Postcondition: srv is stopped and the connection closed when the test ends.
func DialInProcess(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	t.Helper()
	start := time.Now()
	lis := bufconn.Listen(1 << 20)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dialing in-process server: %v [%s]", err, time.Since(start))
	}

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
		}
	})
	return conn
}
