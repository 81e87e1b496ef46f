package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoaderLoadEmbedded(t *testing.T) {
	loader := NewLoader() // No override dirs

	tmpl, meta, err := loader.LoadTemplate("triage/new_response.md")
	if err != nil {
		t.Fatalf("failed to load template: %v", err)
	}
	if tmpl == nil {
		t.Fatal("template should not be nil")
	}
	if meta == nil {
		t.Fatal("template should have frontmatter metadata")
	}
	if meta.ID != "new_response" {
		t.Errorf("expected ID 'new_response', got '%s'", meta.ID)
	}
}

func TestBuildNewResponsePrompt(t *testing.T) {
	loader := NewLoader()

	result, err := loader.BuildNewResponsePrompt(TriageData{
		Repo:   "hochfrequenz/triagebot",
		Number: 42,
		Title:  "crash on startup",
		Body:   "it crashes",
	})
	if err != nil {
		t.Fatalf("failed to build prompt: %v", err)
	}
	if !strings.Contains(result, "Issue #42: crash on startup") {
		t.Errorf("prompt missing issue header: %s", result)
	}
	if strings.Contains(result, "Existing discussion") {
		t.Error("empty comments should omit the discussion section")
	}
	if strings.Contains(result, "---\nid:") {
		t.Error("frontmatter leaked into rendered prompt")
	}
}

func TestBuildFeedbackPrompt(t *testing.T) {
	loader := NewLoader()

	result, err := loader.BuildFeedbackPrompt(TriageData{
		Repo:     "o/r",
		Number:   7,
		Title:    "slow query",
		Comments: "bot: use an index\nalice: which column?",
		Feedback: "which column?",
	})
	if err != nil {
		t.Fatalf("failed to build prompt: %v", err)
	}
	if !strings.Contains(result, "which column?") {
		t.Errorf("feedback not included: %s", result)
	}
}

func TestLoaderOverride(t *testing.T) {
	tmpDir := t.TempDir()
	triageDir := filepath.Join(tmpDir, "triage")
	if err := os.MkdirAll(triageDir, 0755); err != nil {
		t.Fatal(err)
	}

	customContent := `CUSTOM prompt for {{.Repo}} issue {{.Number}}`
	if err := os.WriteFile(filepath.Join(triageDir, "system.md"), []byte(customContent), 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(tmpDir)
	result, err := loader.BuildSystemPrompt(TriageData{Repo: "o/r", Number: 3})
	if err != nil {
		t.Fatalf("failed to build prompt: %v", err)
	}
	if !strings.Contains(result, "CUSTOM prompt for o/r issue 3") {
		t.Errorf("override not applied: %s", result)
	}
}

func TestLoaderCache(t *testing.T) {
	loader := NewLoader()

	first, _, err := loader.LoadTemplate("triage/summarize.md")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := loader.LoadTemplate("triage/summarize.md")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("second load should hit the cache")
	}

	loader.ClearCache()
	third, _, err := loader.LoadTemplate("triage/summarize.md")
	if err != nil {
		t.Fatal(err)
	}
	if first == third {
		t.Error("cache clear should force a reload")
	}
}

func TestParseFrontmatterMalformed(t *testing.T) {
	meta, body, err := parseFrontmatter([]byte("---\nid: x\nno closing delimiter"))
	if err != nil {
		t.Fatalf("malformed frontmatter should not error: %v", err)
	}
	if meta != nil {
		t.Error("malformed frontmatter should yield no metadata")
	}
	if !strings.Contains(body, "no closing delimiter") {
		t.Errorf("body = %q", body)
	}
}
