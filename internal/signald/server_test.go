package signald

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/qiminjie89/linkkit/pkg/config"
	"github.com/qiminjie89/linkkit/pkg/signaling"
)

func testConfig() *config.SignalConfig {
	cfg := &config.SignalConfig{
		Server: config.ServerConfig{
			Addr:           "127.0.0.1:0",
			HealthAddr:     "127.0.0.1:0",
			GRPCHealthAddr: "127.0.0.1:0",
			Path:           "/signal",
		},
	}
	cfg.SetDefaults()
	return cfg
}

func startServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(testConfig(), zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func getHealth(t *testing.T, s *Server) HealthStatus {
	t.Helper()
	resp, err := http.Get("http://" + s.Addr("health").String() + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var h HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return h
}

func TestServerHealth(t *testing.T) {
	s := startServer(t)

	h := getHealth(t, s)
	if h.Status != "healthy" || h.Peers != 0 || h.AuthRequired {
		t.Fatalf("health = %+v", h)
	}
	if s.Addr("metrics") != nil {
		t.Fatal("metrics listener started while disabled")
	}
}

func TestServerRelaysPeers(t *testing.T) {
	s := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := "ws://" + s.Addr("relay").String() + "/signal"

	alice, err := signaling.Dial(ctx, url, "alice", signaling.ClientOptions{})
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer alice.Close()
	bob, err := signaling.Dial(ctx, url, "bob", signaling.ClientOptions{})
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bob.Close()

	go func() {
		in, err := bob.NextOffer(ctx)
		if err != nil {
			return
		}
		in.Answer(ctx, signaling.Description{Type: "answer", SDP: "bob-sdp"})
	}()

	answer, err := alice.Offer(ctx, "bob", signaling.Description{Type: "offer", SDP: "alice-sdp"})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if answer.SDP != "bob-sdp" {
		t.Fatalf("answer = %+v", answer)
	}

	if h := getHealth(t, s); h.Peers != 2 {
		t.Fatalf("peers = %d, want 2", h.Peers)
	}
}

func TestServerGRPCHealth(t *testing.T) {
	s := startServer(t)

	conn, err := grpc.NewClient(s.Addr("grpc").String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc client: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := healthpb.NewHealthClient(conn)
	for _, service := range []string{"", ServiceName} {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("check %q: %v", service, err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("check %q = %s", service, resp.GetStatus())
		}
	}
}

func TestServerBindError(t *testing.T) {
	first := startServer(t)

	cfg := testConfig()
	cfg.Server.Addr = first.Addr("relay").String()
	s := NewServer(cfg, zap.NewNop())
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("second server bound an occupied port")
	}
}
