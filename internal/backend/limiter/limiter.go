package limiter

import (
	"io"
	"net/http"
)

// Limiter defines an interface that implementers can use to rate limit I/O
// according to some policy defined and configured by the implementer.
// Archives are only ever read, so only the downstream direction is limited.
type Limiter interface {
	// Transport returns an http.RoundTripper that limits the response bodies
	// read through it.
	Transport(http.RoundTripper) http.RoundTripper

	// Downstream returns a rate limited reader that is intended to be used
	// for downloads.
	Downstream(r io.Reader) io.Reader

	// DownstreamWriter returns a rate limited writer that is intended to be
	// used for downloads.
	DownstreamWriter(r io.Writer) io.Writer
}
