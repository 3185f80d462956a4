package editor

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/haivivi/chronicle/pkg/completion"
)

// Default sampling temperatures. Candidate i is requested at
// DefaultBaseTemperature + i*DefaultTemperatureStep.
const (
	DefaultBaseTemperature float32 = 0.7
	DefaultTemperatureStep float32 = 0.1
)

// FetchRequest describes one generation.
type FetchRequest struct {
	Text     string
	Settings completion.Settings
	Mode     completion.Mode
}

// Coordinator fetches the candidates of one generation.
type Coordinator struct {
	Service completion.Service

	BaseTemperature float32
	TemperatureStep float32
}

// NewCoordinator returns a Coordinator using the default temperatures.
func NewCoordinator(svc completion.Service) *Coordinator {
	return &Coordinator{
		Service:         svc,
		BaseTemperature: DefaultBaseTemperature,
		TemperatureStep: DefaultTemperatureStep,
	}
}

// Fetch requests Settings.VariantCount candidates, at least one. Candidate 0
// is streamed: each chunk is passed to onToken in arrival order and the
// candidate is their concatenation. The others are requested concurrently
// with increasing temperatures. The count is not capped here; callers bound
// it with Settings.Normalize.
//
// The first failure cancels the remaining requests and is returned as is.
// On success the candidates are in index order.
func (c *Coordinator) Fetch(ctx context.Context, req FetchRequest, onToken func(string)) ([]string, error) {
	n := max(req.Settings.VariantCount, 1)
	base := completion.BuildRequest(req.Text, req.Settings.Normalize(), req.Mode)

	out := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := c.stream(gctx, base.WithTemperature(c.BaseTemperature), onToken)
		if err != nil {
			return err
		}
		out[0] = text
		return nil
	})
	for i := 1; i < n; i++ {
		g.Go(func() error {
			temp := c.BaseTemperature + float32(i)*c.TemperatureStep
			text, err := c.Service.Complete(gctx, base.WithTemperature(temp))
			if err != nil {
				return err
			}
			out[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Debug("editor/fetch: generation failed", "variants", n, "error", err)
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) stream(ctx context.Context, req completion.Request, onToken func(string)) (string, error) {
	st, err := c.Service.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer st.Close()

	var sb strings.Builder
	for {
		chunk, err := st.Next()
		if err != nil {
			if errors.Is(err, completion.ErrDone) {
				return sb.String(), nil
			}
			return "", err
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		sb.WriteString(chunk)
		if onToken != nil {
			onToken(chunk)
		}
	}
}
