package limiter

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

type staticLimiter struct {
	downstream *rate.Limiter
}

// Limits represents static download limits
type Limits struct {
	DownloadKb int
}

// NewStaticLimiter constructs a Limiter with a fixed (static) download rate
// cap. A limit of zero disables rate limiting.
func NewStaticLimiter(l Limits) Limiter {
	var downstream *rate.Limiter

	if l.DownloadKb > 0 {
		downstream = rate.NewLimiter(rate.Limit(toByteRate(l.DownloadKb)), int(toByteRate(l.DownloadKb)))
	}

	return staticLimiter{
		downstream: downstream,
	}
}

func (l staticLimiter) Downstream(r io.Reader) io.Reader {
	return l.limitReader(r, l.downstream)
}

func (l staticLimiter) DownstreamWriter(w io.Writer) io.Writer {
	return l.limitWriter(w, l.downstream)
}

type roundTripper func(*http.Request) (*http.Response, error)

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req)
}

func (l staticLimiter) roundTripper(rt http.RoundTripper, req *http.Request) (*http.Response, error) {
	res, err := rt.RoundTrip(req)

	if res != nil && res.Body != nil {
		res.Body = limitedReadCloser{
			limited:  l.Downstream(res.Body),
			original: res.Body,
		}
	}

	return res, err
}

// Transport returns an HTTP transport limited with the limiter l.
func (l staticLimiter) Transport(rt http.RoundTripper) http.RoundTripper {
	return roundTripper(func(req *http.Request) (*http.Response, error) {
		return l.roundTripper(rt, req)
	})
}

func (l staticLimiter) limitReader(r io.Reader, b *rate.Limiter) io.Reader {
	if b == nil {
		return r
	}
	return &rateLimitedReader{r, b}
}

type rateLimitedReader struct {
	reader  io.Reader
	limiter *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err := consumeTokens(n, r.limiter); err != nil {
		return n, err
	}
	return n, err
}

func (l staticLimiter) limitWriter(w io.Writer, b *rate.Limiter) io.Writer {
	if b == nil {
		return w
	}
	return &rateLimitedWriter{w, b}
}

type rateLimitedWriter struct {
	writer  io.Writer
	limiter *rate.Limiter
}

func (w *rateLimitedWriter) Write(buf []byte) (int, error) {
	if err := consumeTokens(len(buf), w.limiter); err != nil {
		return 0, err
	}
	return w.writer.Write(buf)
}

func consumeTokens(tokens int, limiter *rate.Limiter) error {
	// bucket size is the limit itself, wait in chunks of at most that size
	for tokens > 0 {
		n := tokens
		if n > limiter.Burst() {
			n = limiter.Burst()
		}
		if err := limiter.WaitN(context.Background(), n); err != nil {
			return err
		}
		tokens -= n
	}
	return nil
}

func toByteRate(val int) float64 {
	return float64(val) * 1024.
}

type limitedReadCloser struct {
	original io.ReadCloser
	limited  io.Reader
}

func (l limitedReadCloser) Read(b []byte) (n int, err error) {
	return l.limited.Read(b)
}

func (l limitedReadCloser) Close() error {
	return l.original.Close()
}
