package commands

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haivivi/chronicle/cmd/chronicle/internal/config"
	"github.com/haivivi/chronicle/pkg/completion"
)

// setupGeminiContext creates context "art" whose completion.yaml points at a
// Gemini endpoint drawing a three byte PNG.
func setupGeminiContext(t *testing.T) (paths chan string) {
	t.Helper()
	dir := setupTestEnv(t)
	paths = make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case paths <- r.URL.Path:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates": [{"content": {"parts": [{"inlineData": {"mimeType": "image/png", "data": "iVBO"}}]}}]}`)
	}))
	t.Cleanup(srv.Close)

	cfg, _ := config.LoadFrom(dir)
	if err := cfg.AddContext("art"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.UseContext("art"); err != nil {
		t.Fatal(err)
	}
	cc := completion.Config{
		Provider: "gemini",
		APIKey:   "test-key",
		BaseURL:  srv.URL + "/",
		Model:    "gemini-test",
	}
	if err := config.SaveService(cfg.ContextDir("art"), config.CompletionService, &cc); err != nil {
		t.Fatal(err)
	}
	ed := config.DefaultEditor()
	ed.ImageModel = "painter-test"
	if err := config.SaveService(cfg.ContextDir("art"), config.EditorService, &ed); err != nil {
		t.Fatal(err)
	}
	return paths
}

func TestImage_Generate(t *testing.T) {
	paths := setupGeminiContext(t)
	file := filepath.Join(t.TempDir(), "cover.png")

	stdout := mustRun(t, "image", "--generate", "--save", file, "--format", "json", "The tide came in over the old stones.")
	var res imageResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if res.MIMEType != "image/png" || res.Bytes != 3 || res.File != file || res.URL != "" {
		t.Errorf("result = %+v", res)
	}
	if !strings.HasSuffix(res.Prompt, "The tide came in over the old stones.") {
		t.Errorf("prompt = %q", res.Prompt)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "\x89PN" {
		t.Errorf("saved %q", data)
	}
	if p := <-paths; !strings.HasSuffix(p, "models/painter-test:generateContent") {
		t.Errorf("path = %q", p)
	}
}

func TestImage_GenerateSelection(t *testing.T) {
	setupGeminiContext(t)

	stdout := mustRun(t, "image", "--generate", "--selection", "a lantern", "-q", ".url", "--format", "raw")
	if stdout != "data:image/png;base64,iVBO" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestImage_Errors(t *testing.T) {
	setupChatContext(t)

	if _, stderr, code := runCmd(t, "image", "--generate", "text"); code == 0 || !strings.Contains(stderr, "gemini") {
		t.Errorf("openai context: exit %d, %s", code, stderr)
	}
	if _, stderr, code := runCmd(t, "image", "text"); code == 0 || !strings.Contains(stderr, "pexels") {
		t.Errorf("no pexels: exit %d, %s", code, stderr)
	}
}
