package config

import (
	"crypto/tls"
	"crypto/x509"
	"os"
)

// ClientTLS builds the tls.Config for the exporter endpoint.
// Plain http endpoints return ErrTLSNotEnabled; https endpoints without a CA file
// trust the system roots.
func (c ExportConfig) ClientTLS() (*tls.Config, error) {
	if !c.Secure() {
		return nil, ErrTLSNotEnabled
	}

	tlsCfg, err := c.TLS.ClientConfig()
	if err != nil {
		return nil, err
	}

	if c.Endpoint != nil {
		tlsCfg.ServerName = c.Endpoint.Hostname()
	}

	return tlsCfg, nil
}

// ClientConfig loads the configured CA and client key pair.
func (t TLSConfig) ClientConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		//nolint:gosec // allow insecure skip verify via config.
		InsecureSkipVerify: t.InsecureSkipVerify,
	}

	if t.CAFile != "" {
		data, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, wrapConfigError("tls.ca_file", err, "read ca file "+t.CAFile)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, invalidConfigError("tls.ca_file", "failed to parse ca file %s", t.CAFile)
		}

		tlsCfg.RootCAs = pool
	}

	if t.CertFile != "" || t.KeyFile != "" {
		if t.CertFile == "" || t.KeyFile == "" {
			return nil, invalidConfigError("tls", "cert_file and key_file must both be set")
		}

		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, wrapConfigError("tls", err, "load tls client certificate")
		}

		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}
