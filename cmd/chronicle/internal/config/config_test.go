package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/haivivi/chronicle/pkg/completion"
)

func TestLoad_EnvDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDir, dir)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dir != dir || cfg.CurrentContext != "" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestContexts(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := LoadFrom(dir)

	if _, err := cfg.ResolveContext(""); err == nil {
		t.Error("ResolveContext without current context should fail")
	}
	if err := cfg.AddContext("dev"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.AddContext("dev"); err == nil {
		t.Error("duplicate AddContext should fail")
	}
	if err := cfg.AddContext("../x"); err == nil {
		t.Error("AddContext with separator should fail")
	}
	if err := cfg.UseContext("prod"); err == nil {
		t.Error("UseContext of missing context should fail")
	}
	if err := cfg.UseContext("dev"); err != nil {
		t.Fatal(err)
	}

	reloaded, _ := LoadFrom(dir)
	if reloaded.CurrentContext != "dev" {
		t.Errorf("CurrentContext = %q, want dev", reloaded.CurrentContext)
	}
	got, err := reloaded.ResolveContext("")
	if err != nil || got != cfg.ContextDir("dev") {
		t.Errorf("ResolveContext = %q, %v", got, err)
	}

	cfg.AddContext("staging")
	names, _ := cfg.ListContexts()
	if !slices.Equal(names, []string{"dev", "staging"}) {
		t.Errorf("ListContexts = %v", names)
	}

	if err := cfg.DeleteContext("dev"); err != nil {
		t.Fatal(err)
	}
	if cfg.CurrentContext != "" {
		t.Errorf("CurrentContext = %q after delete", cfg.CurrentContext)
	}
	if _, err := cfg.ResolveContext("dev"); err == nil {
		t.Error("deleted context still resolves")
	}
}

func TestServices(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadCompletion(dir); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("LoadCompletion err = %v, want ErrServiceNotFound", err)
	}

	cc := completion.Config{Provider: "gemini", APIKey: "$GEMINI_API_KEY", Model: "gemini-2.5-flash"}
	if err := SaveService(dir, CompletionService, &cc); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCompletion(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Provider != "gemini" || got.APIKey != "$GEMINI_API_KEY" || got.DefaultModel() != "gemini-2.5-flash" {
		t.Errorf("LoadCompletion = %+v", got)
	}

	info, err := os.Stat(ServicePath(dir, CompletionService))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	os.WriteFile(filepath.Join(dir, "pexels.yml"), []byte("api_key: x\n"), 0600)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600)
	services, _ := ListServices(dir)
	if !slices.Equal(services, []string{"completion", "pexels"}) {
		t.Errorf("ListServices = %v", services)
	}
}

func TestLoadEditor(t *testing.T) {
	dir := t.TempDir()

	ed, err := LoadEditor(dir)
	if err != nil {
		t.Fatal(err)
	}
	if ed != DefaultEditor() {
		t.Errorf("LoadEditor without file = %+v", ed)
	}
	if d, _ := ed.CadenceDuration(); d != 12*time.Millisecond {
		t.Errorf("default cadence = %v", d)
	}

	yaml := "settings:\n  tone: academic\n  variant_count: 9\ncadence: 20ms\nstore: badger\n"
	if err := os.WriteFile(ServicePath(dir, EditorService), []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}
	ed, err = LoadEditor(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := completion.Settings{Tone: completion.ToneAcademic, Length: completion.LengthMedium, VariantCount: 4}
	if ed.Settings != want {
		t.Errorf("Settings = %+v, want %+v", ed.Settings, want)
	}
	if d, err := ed.CadenceDuration(); err != nil || d != 20*time.Millisecond {
		t.Errorf("CadenceDuration = %v, %v", d, err)
	}
	if ed.Store != "badger" || ed.BaseTemperature != 0.7 {
		t.Errorf("editor = %+v", ed)
	}

	for _, bad := range []string{"fast", "-1ms"} {
		if _, err := (Editor{Cadence: bad}).CadenceDuration(); err == nil {
			t.Errorf("CadenceDuration(%q) should fail", bad)
		}
	}
}
