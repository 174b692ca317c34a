// Package compression implements the decompression layer spec.md §9 leaves
// out of the core but names as a supplemental concern: a Sender decorator
// that negotiates Accept-Encoding and transparently unwraps a compressed
// response body.
package compression

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/thushan/pconn/internal/adapter/middleware"
)

// Decompressor is a middleware.Sender decorator. It sets Accept-Encoding
// exactly once, only when the caller has not already set one, then
// transparently decodes gzip/deflate responses.
type Decompressor struct {
	Next middleware.Sender
}

func (d Decompressor) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	ownsEncoding := req.Header.Get("Accept-Encoding") == ""
	if ownsEncoding {
		req.Header.Set("Accept-Encoding", "gzip, deflate")
	}

	resp, err := d.Next.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if !ownsEncoding {
		return resp, nil
	}

	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return decodeWith(resp, func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		})
	case "deflate":
		return decodeWith(resp, func(r io.Reader) (io.ReadCloser, error) {
			return flate.NewReader(r), nil
		})
	default:
		return resp, nil
	}
}

func decodeWith(resp *http.Response, open func(io.Reader) (io.ReadCloser, error)) (*http.Response, error) {
	decoded, err := open(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("compression: opening %s stream: %w", resp.Header.Get("Content-Encoding"), err)
	}
	original := resp.Body
	resp.Body = &chainedCloser{ReadCloser: decoded, also: original}
	resp.Header.Del("Content-Encoding")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

// chainedCloser closes both the decompressing reader and the underlying
// network body it wraps.
type chainedCloser struct {
	io.ReadCloser
	also io.Closer
}

func (c *chainedCloser) Close() error {
	err := c.ReadCloser.Close()
	if cerr := c.also.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
