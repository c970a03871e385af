// Package signald 实现信令中继服务
package signald

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/qiminjie89/linkkit/pkg/auth"
	"github.com/qiminjie89/linkkit/pkg/config"
	"github.com/qiminjie89/linkkit/pkg/kafka"
	"github.com/qiminjie89/linkkit/pkg/signaling"
)

const (
	shutdownTimeout = 5 * time.Second

	// ServiceName gRPC 健康检查使用的服务名
	ServiceName = "linkkit.signaling"
)

// Server 信令服务器：中继、健康检查、指标各占一个 HTTP 监听，可选 gRPC 健康检查
type Server struct {
	cfg   *config.SignalConfig
	log   *zap.Logger
	relay *signaling.Relay

	producer *kafka.Producer
	health   *health.Server
	grpcSrv  *grpc.Server

	servers []*http.Server
	addrs   map[string]net.Addr
	wg      sync.WaitGroup

	startTime time.Time
}

// NewServer 创建信令服务器
func NewServer(cfg *config.SignalConfig, log *zap.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		log:   log,
		addrs: make(map[string]net.Addr),
	}

	opts := signaling.RelayOptions{
		AuthRequired: cfg.Auth.Required,
		Logger:       log,
	}
	if cfg.Auth.Secret != "" {
		opts.Validator = auth.NewJWTValidator(cfg.Auth.Secret)
	}
	if cfg.Events.Enabled() {
		s.producer = kafka.NewProducer(&kafka.ProducerConfig{
			Brokers:      cfg.Events.Brokers,
			Topic:        cfg.Events.Topic,
			BatchSize:    cfg.Events.BatchSize,
			BatchTimeout: cfg.Events.BatchTimeout,
		}, log.Named("kafka"))
		opts.Events = s.producer
	}
	s.relay = signaling.NewRelay(opts)
	return s
}

// Start 绑定所有监听并在后台服务
func (s *Server) Start() error {
	s.startTime = time.Now()

	relayMux := http.NewServeMux()
	relayMux.Handle(s.cfg.Server.Path, s.relay)
	if err := s.serve("relay", s.cfg.Server.Addr, relayMux); err != nil {
		return err
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", s.healthHandler)
	if err := s.serve("health", s.cfg.Server.HealthAddr, healthMux); err != nil {
		s.Stop()
		return err
	}

	if s.cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		if err := s.serve("metrics", s.cfg.Metrics.Addr, metricsMux); err != nil {
			s.Stop()
			return err
		}
	}

	if s.cfg.Server.GRPCHealthAddr != "" {
		if err := s.serveGRPCHealth(s.cfg.Server.GRPCHealthAddr); err != nil {
			s.Stop()
			return err
		}
	}

	s.log.Info("signald started",
		zap.String("addr", s.cfg.Server.Addr),
		zap.String("path", s.cfg.Server.Path),
		zap.Bool("auth_required", s.cfg.Auth.Required),
		zap.Bool("events", s.producer != nil),
	)
	return nil
}

// Addr 返回名为 relay/health/metrics/grpc 的监听实际地址，未启动时为 nil
func (s *Server) Addr(name string) net.Addr {
	return s.addrs[name]
}

func (s *Server) serve(name, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.addrs[name] = ln.Addr()
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	s.servers = append(s.servers, srv)

	s.log.Info("starting "+name+" server", zap.String("addr", ln.Addr().String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(name+" server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) serveGRPCHealth(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.addrs["grpc"] = ln.Addr()

	s.health = health.NewServer()
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	s.grpcSrv = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcSrv, s.health)

	s.log.Info("starting grpc health server", zap.String("addr", ln.Addr().String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.grpcSrv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("grpc health server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop 停止所有监听并断开对端
func (s *Server) Stop() {
	s.log.Info("stopping signald")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.health != nil {
		// 先让探活失败，负载均衡摘除后再断开
		s.health.Shutdown()
	}
	// 已升级的 WebSocket 不受 Shutdown 管理，先主动断开
	s.relay.Close()
	for _, srv := range s.servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.log.Warn("server shutdown", zap.Error(err))
		}
	}
	if s.grpcSrv != nil {
		s.grpcSrv.GracefulStop()
	}
	s.wg.Wait()

	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.log.Warn("kafka producer close", zap.Error(err))
		}
	}
	s.log.Info("signald stopped")
}
