package completion

import (
	"context"
	"errors"
)

// ErrDone is returned by Stream.Next when the continuation is complete.
var ErrDone = errors.New("completion: done")

// Service produces continuations for a prompt.
type Service interface {
	// Stream starts a streaming completion. Text arrives through the
	// returned Stream in order.
	Stream(ctx context.Context, req Request) (Stream, error)

	// Complete runs a completion and returns the full text.
	Complete(ctx context.Context, req Request) (string, error)
}

// Stream yields the text chunks of one streaming completion.
type Stream interface {
	// Next returns the next chunk, ErrDone at the end, or the failure that
	// ended the stream.
	Next() (string, error)

	// Close abandons the stream. A producer still running sees its writes
	// fail and stops.
	Close() error
}

// Prompt is the provider-neutral prompt of a completion request.
type Prompt struct {
	// System is sent as the system instruction.
	System string `json:"system,omitzero" yaml:"system,omitempty"`
	// Text is the user turn.
	Text string `json:"text" yaml:"text"`
}

// SamplingParams are the sampling knobs of a request. Zero values leave the
// provider default in place.
type SamplingParams struct {
	Temperature float32 `json:"temperature,omitzero" yaml:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitzero" yaml:"top_p,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitzero" yaml:"max_tokens,omitempty"`
}

// Request is one completion request.
type Request struct {
	Prompt Prompt         `json:"prompt" yaml:"prompt"`
	Params SamplingParams `json:"params,omitzero" yaml:"params,omitempty"`
}

// WithTemperature returns a copy of r using temperature t.
func (r Request) WithTemperature(t float32) Request {
	r.Params.Temperature = t
	return r
}
