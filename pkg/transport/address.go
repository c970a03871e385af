package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// parseHostPort 校验 host:port（QUIC 与监听地址使用）
func parseHostPort(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	if err := checkPort(port); err != nil {
		return "", err
	}
	return net.JoinHostPort(host, port), nil
}

func checkPort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// parseURL 校验 scheme://host:port[/path]，schemes 为允许的协议
func parseURL(addr string, schemes ...string) (*url.URL, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("empty address")
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	ok := false
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			ok = true
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("scheme %q not in %v", u.Scheme, schemes)
	}
	if u.Hostname() == "" {
		return nil, errors.New("missing host")
	}
	if p := u.Port(); p != "" {
		if err := checkPort(p); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// parseListenAddr WebSocket 监听地址：host:port 或 ws://host:port/path
func parseListenAddr(addr, defaultPath string) (hostport, path string, err error) {
	if strings.Contains(addr, "://") {
		u, err := parseURL(addr, "ws", "wss")
		if err != nil {
			return "", "", err
		}
		if u.Port() == "" {
			return "", "", errors.New("listen address needs an explicit port")
		}
		path = u.Path
		if path == "" {
			path = defaultPath
		}
		return u.Host, path, nil
	}
	hostport, err = parseHostPort(addr)
	if err != nil {
		return "", "", err
	}
	return hostport, defaultPath, nil
}

// parsePeerID WebRTC 地址：webrtc://<peer-id>
func parsePeerID(addr string) (string, error) {
	u, err := parseURL(addr, "webrtc")
	if err != nil {
		return "", err
	}
	if u.Port() != "" || (u.Path != "" && u.Path != "/") {
		return "", fmt.Errorf("webrtc address carries only a peer id, got %q", addr)
	}
	return u.Hostname(), nil
}
