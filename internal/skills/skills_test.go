package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoad_FlatAndNested(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "copywriting.md", "---\nname: copywriting\ndescription: Writes marketing copy\nsquad: creative\n---\n# Copywriting\n\nWrite persuasive copy.\n")
	writeSkill(t, dir, "seo/SKILL.md", "---\nname: seo\ndescription: Optimizes content for search\nmodel_tier: small\n---\nAudit and improve rankings.\n")
	writeSkill(t, dir, "notes.txt", "not a skill")

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	skills := reg.List()
	if len(skills) != 2 {
		t.Fatalf("loaded %d skills, want 2", len(skills))
	}
	if skills[0].Name != "copywriting" || skills[1].Name != "seo" {
		t.Errorf("names = %s, %s", skills[0].Name, skills[1].Name)
	}

	copy, ok := reg.Get("copywriting")
	if !ok {
		t.Fatal("copywriting not found")
	}
	if copy.Squad != "creative" {
		t.Errorf("squad = %q, want creative", copy.Squad)
	}
	if !strings.Contains(copy.Body, "persuasive copy") {
		t.Errorf("body = %q", copy.Body)
	}

	seo, _ := reg.Get("seo")
	if seo.ModelTier != "small" {
		t.Errorf("model tier = %q, want small", seo.ModelTier)
	}
}

func TestLoad_MissingDirIsEmpty(t *testing.T) {
	reg, err := Load(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reg.List()) != 0 {
		t.Errorf("expected empty registry")
	}
}

func TestLoad_MissingNameFails(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "broken.md", "---\ndescription: no name\n---\nbody\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestLoad_DuplicateNameFails(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "a.md", "---\nname: seo\ndescription: one\n---\nx\n")
	writeSkill(t, dir, "b.md", "---\nname: SEO\ndescription: two\n---\ny\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestLoad_References(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "paid-ads/SKILL.md", "---\nname: paid-ads\ndescription: Runs paid campaigns\nreferences:\n  - channels.md\n---\nPlan spend.\n")
	writeSkill(t, dir, "paid-ads/channels.md", "# Channels\n\nSearch, social.\n")

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	skill, _ := reg.Get("paid-ads")
	if len(skill.References) != 1 {
		t.Fatalf("references = %d, want 1", len(skill.References))
	}
	if !strings.Contains(skill.References[0].Content, "Search, social.") {
		t.Errorf("reference content = %q", skill.References[0].Content)
	}
}

func TestLoad_ReferenceEscapeRejected(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "bad/SKILL.md", "---\nname: bad\ndescription: escapes\nreferences:\n  - ../../etc/passwd\n---\nx\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected escape error")
	}
}

func TestSquadFor(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "copywriting.md", "---\nname: copywriting\ndescription: copy\nsquad: wordsmiths\n---\nx\n")
	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := reg.SquadFor("copywriting"); got != "wordsmiths" {
		t.Errorf("declared squad = %q, want wordsmiths", got)
	}
	if got := reg.SquadFor("page-cro"); got != "convert" {
		t.Errorf("default squad = %q, want convert", got)
	}
	if got := reg.SquadFor("never-heard-of-it"); got != "general" {
		t.Errorf("fallback squad = %q, want general", got)
	}
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", got)
	}
	got := CountTokens("hello world")
	if got < 1 || got > 4 {
		t.Errorf("CountTokens(\"hello world\") = %d, out of range", got)
	}
}

func TestEstimateFast(t *testing.T) {
	if got := EstimateFast("  "); got != 0 {
		t.Errorf("blank = %d, want 0", got)
	}
	if got := EstimateFast("a"); got != 1 {
		t.Errorf("single rune = %d, want 1", got)
	}
	long := strings.Repeat("word ", 100)
	if got := EstimateFast(long); got < 100 {
		t.Errorf("100 words = %d, want >= 100", got)
	}
}
