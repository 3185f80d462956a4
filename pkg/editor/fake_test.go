package editor

import (
	"context"
	"math"
	"sync"

	"github.com/haivivi/chronicle/pkg/completion"
)

// fakeService streams chunks for candidate 0 and answers Complete by
// candidate index, derived from the request temperature.
type fakeService struct {
	chunks []string
	others []string

	// streamErr aborts the stream after the chunks.
	streamErr error
	// completeErr fails every Complete call.
	completeErr error
	// hold blocks Stream after the chunks until ctx is done.
	hold bool
	// gate, when set, must be closed before Complete answers.
	gate chan struct{}
	// gates hold Complete for one candidate index; gates[0] holds the end
	// of the stream.
	gates map[int]chan struct{}
	// finished receives each candidate index as its request ends.
	finished chan int

	mu    sync.Mutex
	temps []float32
	reqs  []completion.Request
}

func (f *fakeService) record(req completion.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.temps = append(f.temps, req.Params.Temperature)
	f.reqs = append(f.reqs, req)
}

func (f *fakeService) Stream(ctx context.Context, req completion.Request) (completion.Stream, error) {
	f.record(req)
	f.mu.Lock()
	chunks, streamErr, hold, end := f.chunks, f.streamErr, f.hold, f.gates[0]
	f.mu.Unlock()

	sb := completion.NewStreamBuilder(len(chunks) + 1)
	go func() {
		sb.Add(chunks...)
		if end != nil {
			select {
			case <-end:
			case <-ctx.Done():
			}
		}
		switch {
		case streamErr != nil:
			sb.Abort(streamErr)
		case hold, ctx.Err() != nil:
			<-ctx.Done()
			sb.Abort(ctx.Err())
		default:
			sb.Done()
			f.finish(0)
		}
	}()
	return sb.Stream(), nil
}

func (f *fakeService) Complete(ctx context.Context, req completion.Request) (string, error) {
	f.record(req)
	f.mu.Lock()
	gate, completeErr, others, gates := f.gate, f.completeErr, f.others, f.gates
	f.mu.Unlock()

	i := int(math.Round(float64((req.Params.Temperature - DefaultBaseTemperature) / DefaultTemperatureStep)))
	if g := gates[i]; g != nil {
		gate = g
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if completeErr != nil {
		return "", completeErr
	}
	if i < 1 || i > len(others) {
		return "", &completion.ServiceError{Provider: "fake", Message: "unexpected temperature"}
	}
	f.finish(i)
	return others[i-1], nil
}

func (f *fakeService) finish(i int) {
	if f.finished != nil {
		f.finished <- i
	}
}

func (f *fakeService) requests() []completion.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]completion.Request(nil), f.reqs...)
}
