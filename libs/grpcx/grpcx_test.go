package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestServerHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := NewServer([]string{"dentalbook.availability"})
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, addr, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	conn, err := Dial(dialCtx, addr, DialOptions{Timeout: 2 * time.Second, Block: true})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	check := HealthCheck(conn, "dentalbook.availability")
	if err := check(dialCtx); err != nil {
		t.Fatalf("health check: %v", err)
	}

	srv.Health.SetServingStatus("dentalbook.availability", healthpb.HealthCheckResponse_NOT_SERVING)
	if err := check(dialCtx); err == nil {
		t.Fatal("expected NOT_SERVING to fail the probe")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if RequestIDFromContext(ctx) != "" {
		t.Fatal("empty id must not be stored")
	}
	ctx = WithRequestID(ctx, NewRequestID())
	if len(RequestIDFromContext(ctx)) != 36 {
		t.Fatalf("expected uuid request id, got %q", RequestIDFromContext(ctx))
	}
}
