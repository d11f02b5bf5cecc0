package lorem

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	llmstream "github.com/haowjy/meridian-stream-go"
)

// getStreamDelay returns the delay between frames based on the model name.
// - lorem-slow: 500ms per frame
// - lorem-fast: 33ms per frame
// - lorem-instant: no delay
// - default: 100ms per frame
func getStreamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "instant"):
		return 0
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// Response scripts an answer for req, renders it in family's grammar and
// returns it as a 200 streaming HTTP response. The body releases one frame
// per model-dependent delay and fails with ctx's error once ctx is done,
// like a dropped connection.
func (p *Provider) Response(ctx context.Context, req Request, family llmstream.Family, split Splitter) (*http.Response, Script) {
	script := p.Script(req)
	transcript := Render(family, script, split)

	header := http.Header{}
	header.Set("Content-Type", transcript.ContentType+"; charset=utf-8")
	return &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Header:     header,
		Body: &pacedBody{
			ctx:    ctx,
			frames: transcript.Frames,
			delay:  getStreamDelay(req.Model),
		},
	}, script
}

// pacedBody hands out transcript frames one Read at a time.
type pacedBody struct {
	ctx    context.Context
	frames [][]byte
	cur    []byte
	delay  time.Duration
	closed bool
}

func (b *pacedBody) Read(buf []byte) (int, error) {
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	if len(b.cur) == 0 {
		if len(b.frames) == 0 {
			return 0, io.EOF
		}
		if err := b.wait(); err != nil {
			return 0, err
		}
		b.cur, b.frames = b.frames[0], b.frames[1:]
	}
	n := copy(buf, b.cur)
	b.cur = b.cur[n:]
	return n, nil
}

func (b *pacedBody) wait() error {
	if b.delay <= 0 {
		return b.ctx.Err()
	}
	timer := time.NewTimer(b.delay)
	defer timer.Stop()
	select {
	case <-b.ctx.Done():
		return b.ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *pacedBody) Close() error {
	b.closed = true
	return nil
}
