// Package config 提供配置加载功能
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LinkConfig linkctl 配置
type LinkConfig struct {
	Transport    TransportConfig    `yaml:"transport"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	QUIC         QUICConfig         `yaml:"quic"`
	WebRTC       WebRTCConfig       `yaml:"webrtc"`
	WebTransport WebTransportConfig `yaml:"webtransport"`
	Events       KafkaConfig        `yaml:"events"`
	Log          LogConfig          `yaml:"log"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// SignalConfig signald 配置
type SignalConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Events  KafkaConfig   `yaml:"events"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TransportConfig 传输选择
type TransportConfig struct {
	Kind    string `yaml:"kind"`   // quic, websocket, webrtc, webtransport；为空时按 target 取默认
	Role    string `yaml:"role"`   // initiator, acceptor
	Target  string `yaml:"target"` // native, sandboxed；为空时取当前构建
	Address string `yaml:"address"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize   int           `yaml:"read_buffer_size"`
	WriteBufferSize  int           `yaml:"write_buffer_size"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	MaxMessageSize   int           `yaml:"max_message_size"`
	Path             string        `yaml:"path"`
}

// QUICConfig QUIC 配置
type QUICConfig struct {
	ALPN               string        `yaml:"alpn"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	CertFile           string        `yaml:"cert_file"`
	KeyFile            string        `yaml:"key_file"`
	MaxMessageSize     int           `yaml:"max_message_size"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	KeepAlive          time.Duration `yaml:"keep_alive"`
}

// WebRTCConfig WebRTC 配置
type WebRTCConfig struct {
	ICEServers []string        `yaml:"ice_servers"`
	Label      string          `yaml:"label"`
	Signaling  SignalingClient `yaml:"signaling"`
}

// SignalingClient 信令中继客户端配置
type SignalingClient struct {
	URL    string `yaml:"url"`
	PeerID string `yaml:"peer_id"`
	Token  string `yaml:"token"`
}

// WebTransportConfig WebTransport 配置
type WebTransportConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// ServerConfig 服务器基础配置
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	HealthAddr     string `yaml:"health_addr"`
	GRPCHealthAddr string `yaml:"grpc_health_addr"` // 为空时不启动 gRPC 健康检查
	Path           string `yaml:"path"`
}

// KafkaConfig 信令事件流配置，brokers 为空表示关闭
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	ConsumerGroup string        `yaml:"consumer_group"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
}

// Enabled 是否配置了事件流
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c *KafkaConfig) setDefaults() {
	if c.Topic == "" {
		c.Topic = "linkkit.signaling.events"
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "linkctl"
	}
}

// AuthConfig 信令认证配置
type AuthConfig struct {
	Secret   string `yaml:"secret"`
	Required bool   `yaml:"required"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string       `yaml:"level"`
	Format  string       `yaml:"format"`
	Outputs []string     `yaml:"outputs"`
	Rotate  RotateConfig `yaml:"rotate"`
}

// RotateConfig 日志文件滚动
type RotateConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

var (
	kinds   = []string{"", "quic", "websocket", "ws", "webrtc", "datachannel", "webtransport", "wt"}
	roles   = []string{"", "initiator", "connect", "client", "acceptor", "listen", "server"}
	targets = []string{"", "native", "sandboxed", "browser", "wasm"}
	formats = []string{"", "json", "console"}
)

// LoadLinkConfig 加载 linkctl 配置
func LoadLinkConfig(path string) (*LinkConfig, error) {
	var cfg LinkConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadSignalConfig 加载 signald 配置
func LoadSignalConfig(path string) (*SignalConfig, error) {
	var cfg SignalConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// SetDefaults 填充未配置的字段
func (c *LinkConfig) SetDefaults() {
	if c.Transport.Role == "" {
		c.Transport.Role = "initiator"
	}
	if c.WebSocket.ReadBufferSize == 0 {
		c.WebSocket.ReadBufferSize = 4096
	}
	if c.WebSocket.WriteBufferSize == 0 {
		c.WebSocket.WriteBufferSize = 4096
	}
	if c.WebSocket.HandshakeTimeout == 0 {
		c.WebSocket.HandshakeTimeout = 10 * time.Second
	}
	if c.WebSocket.WriteTimeout == 0 {
		c.WebSocket.WriteTimeout = 10 * time.Second
	}
	if c.WebSocket.MaxMessageSize == 0 {
		c.WebSocket.MaxMessageSize = 1 << 20
	}
	if c.WebSocket.Path == "" {
		c.WebSocket.Path = "/"
	}
	if c.QUIC.ALPN == "" {
		c.QUIC.ALPN = "linkkit"
	}
	if c.QUIC.MaxMessageSize == 0 {
		c.QUIC.MaxMessageSize = 1 << 20
	}
	if c.QUIC.HandshakeTimeout == 0 {
		c.QUIC.HandshakeTimeout = 10 * time.Second
	}
	if c.QUIC.KeepAlive == 0 {
		c.QUIC.KeepAlive = 15 * time.Second
	}
	if c.WebRTC.Label == "" {
		c.WebRTC.Label = "linkkit"
	}
	c.Events.setDefaults()
	c.Log.setDefaults()
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

// Validate 校验配置
func (c *LinkConfig) Validate() error {
	var errs []error
	if !oneOf(c.Transport.Kind, kinds) {
		errs = append(errs, fmt.Errorf("transport.kind: unknown kind %q", c.Transport.Kind))
	}
	if !oneOf(c.Transport.Role, roles) {
		errs = append(errs, fmt.Errorf("transport.role: unknown role %q", c.Transport.Role))
	}
	if !oneOf(c.Transport.Target, targets) {
		errs = append(errs, fmt.Errorf("transport.target: unknown target %q", c.Transport.Target))
	}
	if c.WebSocket.MaxMessageSize < 0 || c.QUIC.MaxMessageSize < 0 {
		errs = append(errs, errors.New("max_message_size must not be negative"))
	}
	if (c.QUIC.CertFile == "") != (c.QUIC.KeyFile == "") {
		errs = append(errs, errors.New("quic.cert_file and quic.key_file must be set together"))
	}
	if err := c.Log.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SetDefaults 填充未配置的字段
func (c *SignalConfig) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":7000"
	}
	if c.Server.HealthAddr == "" {
		c.Server.HealthAddr = ":7001"
	}
	if c.Server.Path == "" {
		c.Server.Path = "/signal"
	}
	c.Events.setDefaults()
	c.Log.setDefaults()
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9101"
	}
}

// Validate 校验配置
func (c *SignalConfig) Validate() error {
	var errs []error
	if c.Auth.Required && c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required when auth.required is true"))
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path must start with /, got %q", c.Server.Path))
	}
	if err := c.Log.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *LogConfig) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if len(c.Outputs) == 0 {
		c.Outputs = []string{"stdout"}
	}
}

func (c *LogConfig) validate() error {
	if !oneOf(c.Format, formats) {
		return fmt.Errorf("log.format: unknown format %q", c.Format)
	}
	return nil
}

func oneOf(v string, set []string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
