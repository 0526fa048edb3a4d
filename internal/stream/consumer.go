// Package stream decodes chunked text responses incrementally.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const readBufferSize = 4096

var (
	// ErrEmptyBody is reported when the response carries no readable body.
	ErrEmptyBody = errors.New("response body is null")
	// ErrCanceled is reported when the caller aborts the stream.
	ErrCanceled = errors.New("stream canceled")
)

// TimeoutError is reported when the request deadline passes, whether
// before the response arrives or mid-stream.
type TimeoutError struct {
	// Partial is the text delivered before the deadline.
	Partial string
}

func (e *TimeoutError) Error() string {
	return "stream timed out"
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// TransportError is reported when reading the body fails.
type TransportError struct {
	// Partial is the text delivered before the failure.
	Partial string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream interrupted: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Handler receives the decoded stream.
type Handler struct {
	// OnChunk receives each newly decoded piece of text.
	OnChunk func(text string)
	// OnComplete receives the full text once the body ends.
	OnComplete func(text string)
	// OnError receives any failure. OnComplete is not called after it.
	OnError func(err error)
}

// Consume decodes body and reports progress through h. It never panics on
// read failures; every failure goes to OnError. The concatenation of all
// OnChunk arguments equals the OnComplete argument.
func Consume(ctx context.Context, body io.Reader, h Handler) {
	var full strings.Builder
	for chunk, err := range Decode(ctx, body) {
		if err != nil {
			if h.OnError != nil {
				h.OnError(classify(ctx, err, full.String()))
			}
			return
		}
		full.WriteString(chunk)
		if h.OnChunk != nil {
			h.OnChunk(chunk)
		}
	}
	if h.OnComplete != nil {
		h.OnComplete(full.String())
	}
}

// Collect drains body and returns the full text.
func Collect(ctx context.Context, body io.Reader) (string, error) {
	var (
		text   string
		runErr error
	)
	Consume(ctx, body, Handler{
		OnComplete: func(s string) { text = s },
		OnError:    func(err error) { runErr = err },
	})
	return text, runErr
}

// Decode yields text chunks as bytes arrive. A single stateful UTF-8
// decoder is used for the whole body; it holds back a rune split across
// reads until its remaining bytes arrive and replaces an unfinished rune
// at EOF with U+FFFD. Errors are raw; Consume classifies them.
func Decode(ctx context.Context, body io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if body == nil || body == http.NoBody {
			yield("", ErrEmptyBody)
			return
		}
		if closer, ok := body.(io.Closer); ok {
			stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
			defer stop()
		}

		dec := transform.NewReader(body, unicode.UTF8.NewDecoder())
		buf := make([]byte, readBufferSize)

		for {
			n, err := dec.Read(buf)
			if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}
			if n > 0 && !yield(string(buf[:n]), nil) {
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	}
}

func classify(ctx context.Context, err error, partial string) error {
	switch {
	case errors.Is(err, ErrEmptyBody):
		return err
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &TimeoutError{Partial: partial}
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return ErrCanceled
	default:
		return &TransportError{Partial: partial, Err: err}
	}
}
