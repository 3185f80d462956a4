package completion

import (
	"errors"

	"github.com/haivivi/chronicle/pkg/buffer"
)

// StreamBuilder is the producer side of a Stream. Provider pullers Add text
// as it arrives and finish with Done or Abort.
type StreamBuilder struct {
	rb *buffer.BlockBuffer[string]
}

// NewStreamBuilder returns a builder buffering up to size chunks.
func NewStreamBuilder(size int) *StreamBuilder {
	return &StreamBuilder{rb: buffer.BlockN[string](size)}
}

// Add queues text chunks. Empty chunks are skipped.
func (sb *StreamBuilder) Add(chunks ...string) error {
	for _, c := range chunks {
		if c == "" {
			continue
		}
		if err := sb.rb.Add(c); err != nil {
			return err
		}
	}
	return nil
}

// Done ends the stream successfully.
func (sb *StreamBuilder) Done() error {
	return sb.rb.CloseWrite()
}

// Abort ends the stream with err.
func (sb *StreamBuilder) Abort(err error) error {
	return sb.rb.CloseWithError(err)
}

// Stream returns the consumer side.
func (sb *StreamBuilder) Stream() Stream {
	return (*streamImpl)(sb)
}

type streamImpl StreamBuilder

func (s *streamImpl) Next() (string, error) {
	chunk, err := s.rb.Next()
	if err == nil {
		return chunk, nil
	}
	if errors.Is(err, buffer.ErrIteratorDone) {
		return "", ErrDone
	}
	if cause := s.rb.Error(); cause != nil {
		return "", cause
	}
	return "", err
}

func (s *streamImpl) Close() error {
	return s.rb.Close()
}
