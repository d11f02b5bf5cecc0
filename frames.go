package llmstream

import (
	"bufio"
	"bytes"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// Content types streamed as one JSON object per line (Cohere v1 and most
// NDJSON proxies). Everything else is parsed as text/event-stream.
const (
	ContentTypeEventStream = "text/event-stream"
	ContentTypeStreamJSON  = "application/stream+json"
	ContentTypeNDJSON      = "application/x-ndjson"
	ContentTypeJSONLines   = "application/jsonl"
)

func init() {
	for _, ct := range []string{ContentTypeStreamJSON, ContentTypeNDJSON, ContentTypeJSONLines} {
		ssestream.RegisterDecoder(ct, newJSONLinesDecoder)
	}
}

// Frame is one logical SSE unit: an optional event name and its data payload.
type Frame struct {
	// Event is the SSE "event:" field, empty when absent
	Event string

	// Data is the (possibly multi-line) "data:" payload without the trailing newline
	Data []byte
}

// IsBlank returns true for frames with neither event name nor data
func (f Frame) IsBlank() bool {
	return f.Event == "" && len(bytes.TrimSpace(f.Data)) == 0
}

// FrameReader yields frames from a line-oriented byte stream.
//
//	for r.Next() {
//		frame := r.Frame()
//	}
//	if r.Err() != nil { ... }
type FrameReader interface {
	Next() bool
	Frame() Frame
	Err() error
	Close() error
}

// NewFrameReader wraps an HTTP response body. The decoder is chosen from the
// response content type: JSON-lines types get one frame per line, everything
// else is decoded as text/event-stream.
func NewFrameReader(resp *http.Response) FrameReader {
	if resp == nil || resp.Body == nil {
		return &sliceFrameReader{}
	}

	// ssestream matches the raw header value; strip parameters and case first.
	normalized := *resp
	normalized.Header = resp.Header.Clone()
	if normalized.Header == nil {
		normalized.Header = http.Header{}
	}
	normalized.Header.Set("Content-Type", normalizeContentType(resp.Header.Get("Content-Type")))

	return &sseFrameReader{dec: ssestream.NewDecoder(&normalized)}
}

// NewFrameReaderFromReader wraps a raw byte stream (a file, a test fixture)
// as if it were a response with the given content type.
func NewFrameReaderFromReader(rc io.ReadCloser, contentType string) FrameReader {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	return NewFrameReader(&http.Response{Header: header, Body: rc})
}

// FramesOf returns a FrameReader over an in-memory list of frames.
func FramesOf(frames ...Frame) FrameReader {
	return &sliceFrameReader{frames: frames, pos: -1}
}

func normalizeContentType(raw string) string {
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

// sseFrameReader adapts an ssestream.Decoder
type sseFrameReader struct {
	dec   ssestream.Decoder
	frame Frame
}

func (r *sseFrameReader) Next() bool {
	if r.dec == nil || !r.dec.Next() {
		return false
	}
	ev := r.dec.Event()
	r.frame = Frame{
		Event: ev.Type,
		Data:  bytes.TrimSuffix(ev.Data, []byte("\n")),
	}
	return true
}

func (r *sseFrameReader) Frame() Frame { return r.frame }

func (r *sseFrameReader) Err() error {
	if r.dec == nil {
		return nil
	}
	return r.dec.Err()
}

func (r *sseFrameReader) Close() error {
	if r.dec == nil {
		return nil
	}
	return r.dec.Close()
}

// jsonLinesDecoder is an ssestream.Decoder for newline-delimited JSON.
// Blank lines are skipped; a leading "data:" prefix is tolerated.
type jsonLinesDecoder struct {
	rc  io.ReadCloser
	scn *bufio.Scanner
	evt ssestream.Event
	err error
}

func newJSONLinesDecoder(rc io.ReadCloser) ssestream.Decoder {
	scn := bufio.NewScanner(rc)
	scn.Buffer(nil, bufio.MaxScanTokenSize<<9)
	return &jsonLinesDecoder{rc: rc, scn: scn}
}

func (d *jsonLinesDecoder) Next() bool {
	if d.err != nil {
		return false
	}
	for d.scn.Scan() {
		line := bytes.TrimSpace(d.scn.Bytes())
		if len(line) == 0 {
			continue
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			line = bytes.TrimSpace(rest)
		}
		d.evt = ssestream.Event{Data: bytes.Clone(line)}
		return true
	}
	d.err = d.scn.Err()
	return false
}

func (d *jsonLinesDecoder) Event() ssestream.Event { return d.evt }

func (d *jsonLinesDecoder) Close() error { return d.rc.Close() }

func (d *jsonLinesDecoder) Err() error { return d.err }

// sliceFrameReader replays in-memory frames
type sliceFrameReader struct {
	frames []Frame
	pos    int
	closed bool
}

func (r *sliceFrameReader) Next() bool {
	if r.closed || r.pos+1 >= len(r.frames) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceFrameReader) Frame() Frame {
	if r.pos < 0 || r.pos >= len(r.frames) {
		return Frame{}
	}
	return r.frames[r.pos]
}

func (r *sliceFrameReader) Err() error { return nil }

func (r *sliceFrameReader) Close() error {
	r.closed = true
	return nil
}
