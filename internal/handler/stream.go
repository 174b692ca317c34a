package handler

import (
	"io"
	"net/http"

	"github.com/thushan/pconn/pkg/pool"
)

const copyBufferSize = 32 * 1024

type copyBuffer struct {
	b []byte
}

func (c *copyBuffer) Reset() {
	c.b = c.b[:0]
}

var bufferPool = pool.NewLitePool(func() *copyBuffer {
	return &copyBuffer{b: make([]byte, copyBufferSize)}
})

// CopyBody streams resp.Body to dst using a pooled buffer rather than
// allocating one per call, then closes the body. Callers that want the
// response body forwarded somewhere else (a proxy, a benchmark sink) should
// use this instead of io.Copy directly.
func CopyBody(dst io.Writer, resp *http.Response) (int64, error) {
	defer func() { _ = resp.Body.Close() }()

	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	return io.CopyBuffer(dst, resp.Body, buf.b[:cap(buf.b)])
}
