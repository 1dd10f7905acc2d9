package backend

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/peterbourgon/unixtransport"
	"github.com/restic/kvrecover/internal/debug"
	"github.com/restic/kvrecover/internal/errors"
	"golang.org/x/net/http2"
)

// TransportOptions collects various options which can be set for an HTTP based
// transport.
type TransportOptions struct {
	// contains filenames of PEM encoded root certificates to trust
	RootCertFilenames []string

	// Skip TLS certificate verification
	InsecureTLS bool
}

// Transport returns a new http.RoundTripper with default settings applied.
// Endpoints using the http+unix or https+unix scheme are dialed through a
// unix domain socket. If a custom root certificate file is given, it must
// point to a valid PEM file.
func Transport(opts TransportOptions) (http.RoundTripper, error) {
	// copied from net/http
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{},
	}

	// ensure that http2 connections are closed if they are broken
	h2, err := http2.ConfigureTransports(tr)
	if err != nil {
		panic(err)
	}
	h2.ReadIdleTimeout = 60 * time.Second
	h2.PingTimeout = 60 * time.Second

	unixtransport.Register(tr)

	if opts.InsecureTLS {
		tr.TLSClientConfig.InsecureSkipVerify = true
	}

	if opts.RootCertFilenames == nil {
		return debug.RoundTripper(tr), nil
	}

	p := x509.NewCertPool()
	for _, filename := range opts.RootCertFilenames {
		if filename == "" {
			return nil, errors.Errorf("empty filename for root certificate supplied")
		}
		b, err := os.ReadFile(filename)
		if err != nil {
			return nil, errors.Errorf("unable to read root certificate: %v", err)
		}
		if ok := p.AppendCertsFromPEM(b); !ok {
			return nil, errors.Errorf("cannot parse root certificate from %q", filename)
		}
	}

	tr.TLSClientConfig.RootCAs = p

	// wrap in the debug round tripper (if active)
	return debug.RoundTripper(tr), nil
}
