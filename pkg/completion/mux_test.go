package completion

import (
	"context"
	"testing"
)

type staticService struct{ text string }

func (s *staticService) Stream(context.Context, Request) (Stream, error) {
	sb := NewStreamBuilder(1)
	go func() {
		sb.Add(s.text)
		sb.Done()
	}()
	return sb.Stream(), nil
}

func (s *staticService) Complete(context.Context, Request) (string, error) {
	return s.text, nil
}

func TestMux(t *testing.T) {
	mux := NewMux()
	if err := mux.Handle("gemini/flash", &staticService{text: "a"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := mux.Handle("gemini/flash", &staticService{}); err == nil {
		t.Error("duplicate Handle expected error")
	}
	if err := mux.Handle("openai/mini", &staticService{text: "b"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := mux.Names(); len(got) != 2 || got[0] != "gemini/flash" || got[1] != "openai/mini" {
		t.Errorf("Names()=%v", got)
	}
	if _, err := mux.Get("anthropic/x"); err == nil {
		t.Error("Get unknown expected error")
	}

	text, err := mux.Route("openai/mini").Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "b" {
		t.Errorf("Complete=%q", text)
	}
	if _, err := mux.Route("missing").Stream(context.Background(), Request{}); err == nil {
		t.Error("Stream on missing route expected error")
	}
}

func TestConfig_DefaultModel(t *testing.T) {
	cfg := Config{Models: []ModelEntry{{Name: "a", Model: "m1"}, {Name: "b", Model: "m2"}}}
	if got := cfg.DefaultModel(); got != "a" {
		t.Errorf("DefaultModel()=%q", got)
	}
	cfg.Default = "b"
	if got := cfg.DefaultModel(); got != "b" {
		t.Errorf("DefaultModel()=%q", got)
	}

	short := Config{Model: "gemini-2.5-flash"}
	if got := short.DefaultModel(); got != "gemini-2.5-flash" {
		t.Errorf("shorthand DefaultModel()=%q", got)
	}
}

func TestRegister_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := Register(ctx, NewMux(), Config{Provider: "gemini", Models: []ModelEntry{{Name: "a", Model: "m"}}}); err == nil {
		t.Error("missing api key expected error")
	}
	if _, err := Register(ctx, NewMux(), Config{Provider: "claude", APIKey: "k", Models: []ModelEntry{{Name: "a", Model: "m"}}}); err == nil {
		t.Error("unknown provider expected error")
	}
	if _, err := Register(ctx, NewMux(), Config{Provider: "openai", APIKey: "k"}); err == nil {
		t.Error("no models expected error")
	}
}

func TestRegister_OpenAI(t *testing.T) {
	t.Setenv("CHRONICLE_TEST_KEY", "sk-test")
	mux := NewMux()
	names, err := Register(context.Background(), mux, Config{
		Provider: "openai",
		APIKey:   "$CHRONICLE_TEST_KEY",
		Models:   []ModelEntry{{Name: "mini", Model: "gpt-4o-mini"}},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(names) != 1 || names[0] != "mini" {
		t.Errorf("names=%v", names)
	}
	svc, err := mux.Get("mini")
	if err != nil {
		t.Fatal(err)
	}
	if o, ok := svc.(*OpenAI); !ok || o.Model != "gpt-4o-mini" {
		t.Errorf("service=%#v", svc)
	}
}
