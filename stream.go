package llmstream

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/haowjy/meridian-stream-go/internal/telemetry"
)

// Stream is the canonical result sequence for one request.
//
// It is pull-based: each call to Next decodes frames until at least one
// result is ready, so the network read advances only when the consumer asks
// for more. No goroutines are started. A Stream is finite, cannot be
// restarted, and is not safe for concurrent use.
//
// Usage:
//
//	stream := llmstream.NewStream(ctx, frames, decoder)
//	defer stream.Close()
//	for stream.Next() {
//		result := stream.Current()
//		if result.IsDelta() { render(result.Message()) }
//	}
//	if err := stream.Err(); err != nil { handle error }
type Stream struct {
	ctx     context.Context
	frames  FrameReader
	decoder Decoder
	opts    Options
	logger  *zap.Logger
	rec     *telemetry.StreamRecorder

	pending   []*PartialResult
	cur       *PartialResult
	err       error
	finished  bool // no more frames will be read
	cancelled bool
	closed    bool
}

// NewStream binds a frame reader to a fresh decoder.
func NewStream(ctx context.Context, frames FrameReader, decoder Decoder, opts ...Option) *Stream {
	o := ApplyOptions(opts...)
	ctx, rec := telemetry.Default().StartStream(ctx, decoder.Provider().String())

	return &Stream{
		ctx:     ctx,
		frames:  frames,
		decoder: decoder,
		opts:    o,
		logger:  o.Logger.With(zap.String("provider", decoder.Provider().String())),
		rec:     rec,
	}
}

// Next advances to the next result. It returns false when the stream has
// ended, was cancelled, or was closed.
func (s *Stream) Next() bool {
	for {
		if len(s.pending) > 0 {
			s.cur = s.pending[0]
			s.pending[0] = nil
			s.pending = s.pending[1:]
			s.observe(s.cur)
			return true
		}
		s.cur = nil
		if s.finished {
			s.end()
			return false
		}

		// The frame read below is the only suspension point; check cancellation first.
		if s.ctx.Err() != nil {
			s.cancel()
			continue
		}

		if !s.frames.Next() {
			s.endOfFrames()
			continue
		}

		frame := s.frames.Frame()
		if frame.IsBlank() {
			continue
		}
		s.rec.Frame()

		results, err := s.decoder.Decode(frame)
		if err != nil {
			s.skipped(frame, err)
		}
		s.pending = append(s.pending, results...)
		if s.decoder.Done() {
			s.finished = true
		}
	}
}

// Current returns the result produced by the last successful Next.
func (s *Stream) Current() *PartialResult {
	return s.cur
}

// Err returns the error that ended the stream, if any. Cancellation is not
// an error: a cancelled stream simply stops. A byte stream that fails before
// the terminal event reports ErrStreamTruncated after its buffered output
// has been yielded.
func (s *Stream) Err() error {
	return s.err
}

// Cancelled reports whether the stream stopped because its context ended.
func (s *Stream) Cancelled() bool {
	return s.cancelled
}

// Close releases the frame reader. Closing before the end stops the stream
// without FinishData. Close is idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	s.cur = nil

	outcome := telemetry.OutcomeClosed
	if s.finished {
		outcome = s.outcome()
	}
	s.finished = true
	s.rec.End(outcome, s.err)
	return s.frames.Close()
}

// All returns the remaining results as an iterator. Breaking out of the loop
// closes the stream (equivalent to cancellation). A terminal error, if any,
// is yielded last with a nil result.
func (s *Stream) All() iter.Seq2[*PartialResult, error] {
	return func(yield func(*PartialResult, error) bool) {
		defer s.Close()
		for s.Next() {
			if !yield(s.Current(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// cancel stops reading and applies the cancel policy.
func (s *Stream) cancel() {
	s.cancelled = true
	s.finished = true
	if s.opts.CancelPolicy == CancelFlush {
		s.pending = append(s.pending, s.decoder.Abort()...)
	}
	s.logger.Debug("stream cancelled", zap.Error(s.ctx.Err()))
}

// endOfFrames handles EOF or a read failure before the decoder finished.
func (s *Stream) endOfFrames() {
	s.finished = true

	if err := s.frames.Err(); err != nil {
		if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
			s.cancel()
			return
		}
		s.err = fmt.Errorf("%w: %w", ErrStreamTruncated, err)
		s.logger.Warn("stream read failed before terminal event, flushing buffered output", zap.Error(err))
	}

	s.pending = append(s.pending, s.decoder.Finish()...)
}

func (s *Stream) skipped(frame Frame, err error) {
	reason := "malformed"
	switch {
	case errors.Is(err, ErrUnknownEvent):
		reason = "unknown_event"
	case errors.Is(err, ErrVendorEvent):
		reason = "vendor_error"
	case errors.Is(err, ErrIllegalTransition):
		reason = "illegal_transition"
	}
	s.rec.Skipped(reason)
	s.logger.Debug("frame skipped",
		zap.String("event", frame.Event),
		zap.String("reason", reason),
		zap.Error(err))
}

func (s *Stream) observe(result *PartialResult) {
	if result.InternalKind == InternalKindAppendAssistantMessage {
		if msg := result.Message(); msg != nil {
			s.rec.ToolCalls(len(msg.ToolCalls))
		}
	}
}

// end runs once all results have been consumed.
func (s *Stream) end() {
	if s.closed {
		return
	}
	s.closed = true
	s.rec.End(s.outcome(), s.err)
	if err := s.frames.Close(); err != nil {
		s.logger.Debug("closing frame reader", zap.Error(err))
	}
}

func (s *Stream) outcome() string {
	switch {
	case s.cancelled:
		return telemetry.OutcomeCancelled
	case s.err != nil:
		return telemetry.OutcomeTruncated
	default:
		return telemetry.OutcomeCompleted
	}
}
