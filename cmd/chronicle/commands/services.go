package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haivivi/chronicle/cmd/chronicle/internal/config"
	"github.com/haivivi/chronicle/pkg/assist"
	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/imagesearch"
	"github.com/haivivi/chronicle/pkg/kv"
	"github.com/haivivi/chronicle/pkg/session"
)

// newService builds the completion service named by model, or by
// editor.yaml, or the default of completion.yaml.
func newService(ctx context.Context, dir, model string, ed config.Editor) (completion.Service, error) {
	cc, err := config.LoadCompletion(dir)
	if err != nil {
		return nil, err
	}
	mux := completion.NewMux()
	names, err := completion.Register(ctx, mux, *cc)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = ed.Model
	}
	if model == "" {
		model = cc.DefaultModel()
	}
	svc, err := mux.Get(model)
	if err != nil {
		return nil, fmt.Errorf("%w (configured: %v)", err, names)
	}
	slog.Debug("chronicle: using model", "model", model, "provider", cc.Provider)
	return svc, nil
}

// newSearcher returns the Pexels client of the context, or nil when
// pexels.yaml is absent.
func newSearcher(dir string) (imagesearch.Searcher, error) {
	pc, err := config.LoadPexels(dir)
	if errors.Is(err, config.ErrServiceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pc.NewClient(), nil
}

// newImager returns an image model on the Gemini account of completion.yaml,
// or nil when the context uses another provider.
func newImager(ctx context.Context, dir string, ed config.Editor) (*assist.Imager, error) {
	cc, err := config.LoadCompletion(dir)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(cc.Provider, "gemini") {
		return nil, nil
	}
	client, err := completion.NewGeminiClient(ctx, *cc)
	if err != nil {
		return nil, err
	}
	return &assist.Imager{Client: client, Model: ed.ImageModel}, nil
}

// sessionFlags are shared by write and serve.
type sessionFlags struct {
	model string
	store string
}

// sessionConfig assembles a session.Config from the context. The returned
// store must be closed by the caller.
func (f sessionFlags) sessionConfig(ctx context.Context, dir string) (session.Config, kv.Store, error) {
	ed, err := config.LoadEditor(dir)
	if err != nil {
		return session.Config{}, nil, err
	}
	cadence, err := ed.CadenceDuration()
	if err != nil {
		return session.Config{}, nil, err
	}
	svc, err := newService(ctx, dir, f.model, ed)
	if err != nil {
		return session.Config{}, nil, err
	}
	searcher, err := newSearcher(dir)
	if err != nil {
		return session.Config{}, nil, err
	}
	imager, err := newImager(ctx, dir, ed)
	if err != nil {
		return session.Config{}, nil, err
	}

	storeName := f.store
	if storeName == "" {
		storeName = ed.Store
	}
	store, err := kv.Open(storeName)
	if err != nil {
		return session.Config{}, nil, err
	}
	return session.Config{
		Service:         svc,
		Store:           store,
		Searcher:        searcher,
		Imager:          imager,
		Settings:        ed.Settings,
		Cadence:         cadence,
		BaseTemperature: ed.BaseTemperature,
		TemperatureStep: ed.TemperatureStep,
	}, store, nil
}
