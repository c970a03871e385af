//go:build !js

package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"
)

// clientTLS 客户端 TLS 配置，alpn 为空时不设置 NextProtos
func clientTLS(o *Options, alpn string, minVersion uint16) *tls.Config {
	var c *tls.Config
	if o.TLSConfig != nil {
		c = o.TLSConfig.Clone()
	} else {
		c = &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify}
	}
	if c.MinVersion < minVersion {
		c.MinVersion = minVersion
	}
	if alpn != "" && len(c.NextProtos) == 0 {
		c.NextProtos = []string{alpn}
	}
	return c
}

// serverTLS 服务端 TLS 配置；未配置证书时生成临时自签证书
func serverTLS(o *Options, alpn string, minVersion uint16) (*tls.Config, error) {
	var c *tls.Config
	switch {
	case o.TLSConfig != nil:
		c = o.TLSConfig.Clone()
	case o.CertFile != "" && o.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, err
		}
		c = &tls.Config{Certificates: []tls.Certificate{cert}}
	default:
		cert, err := selfSignedCert()
		if err != nil {
			return nil, err
		}
		c = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	if c.MinVersion < minVersion {
		c.MinVersion = minVersion
	}
	if alpn != "" && len(c.NextProtos) == 0 {
		c.NextProtos = []string{alpn}
	}
	return c, nil
}

// selfSignedCert 生成一天有效期的自签证书，仅用于本地/开发环境
func selfSignedCert() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "linkkit"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
