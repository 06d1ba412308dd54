// Package skills loads agent skill definitions from a directory of Markdown
// playbooks. Each skill is a prompt body with YAML front matter describing
// the skill name, its squad, and its model tier.
package skills

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is one loaded skill playbook.
type Definition struct {
	Name        string
	Description string
	Squad       string
	ModelTier   string
	Foundation  bool
	Body        string
	References  []Reference
	SourcePath  string
}

// Reference is a supporting document bundled with a skill.
type Reference struct {
	Name    string
	Content string
}

// Registry is a loaded collection of skills.
type Registry struct {
	skills []Definition
	byName map[string]Definition
	root   string
}

// Root returns the directory the registry was loaded from (empty for none).
func (r Registry) Root() string { return r.root }

// List returns all skills sorted by name.
func (r Registry) List() []Definition {
	out := append([]Definition(nil), r.skills...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a skill by name.
func (r Registry) Get(name string) (Definition, bool) {
	if r.byName == nil {
		return Definition{}, false
	}
	skill, ok := r.byName[NormalizeName(name)]
	return skill, ok
}

// SquadFor resolves the output-routing squad for a skill name. The loaded
// definition wins; otherwise the static map applies; otherwise "general".
func (r Registry) SquadFor(name string) string {
	if skill, ok := r.Get(name); ok && skill.Squad != "" {
		return skill.Squad
	}
	if squad, ok := defaultSquads[NormalizeName(name)]; ok {
		return squad
	}
	return "general"
}

// defaultSquads routes skills without an explicit squad declaration.
var defaultSquads = map[string]string{
	"market-research":  "strategy",
	"content-strategy": "strategy",
	"analytics-review": "strategy",
	"copywriting":      "creative",
	"copy-editing":     "creative",
	"social-content":   "creative",
	"email-sequence":   "creative",
	"design-brief":     "creative",
	"page-cro":         "convert",
	"paid-ads":         "convert",
	"seo":              "growth",
}

// Load reads skill Markdown files from dir. Files directly under dir and
// SKILL.md files one level down are both accepted. A missing or empty dir
// yields an empty registry.
func Load(dir string) (Registry, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return Registry{}, nil
	}

	info, err := os.Stat(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Registry{}, nil
		}
		return Registry{}, fmt.Errorf("stat skills dir: %w", err)
	}
	if !info.IsDir() {
		return Registry{}, fmt.Errorf("skills dir %s is not a directory", trimmed)
	}

	skillFiles, err := discoverSkillFiles(trimmed)
	if err != nil {
		return Registry{}, fmt.Errorf("discover skills: %w", err)
	}

	skills := make([]Definition, 0, len(skillFiles))
	byName := make(map[string]Definition, len(skillFiles))
	for _, path := range skillFiles {
		skill, err := parseSkillFile(path)
		if err != nil {
			return Registry{}, err
		}
		if skill.Name == "" {
			return Registry{}, fmt.Errorf("skill %s missing name front matter", path)
		}
		if skill.Description == "" {
			return Registry{}, fmt.Errorf("skill %s missing description front matter", path)
		}
		key := NormalizeName(skill.Name)
		if _, exists := byName[key]; exists {
			return Registry{}, fmt.Errorf("duplicate skill name %q in %s", key, path)
		}
		byName[key] = skill
		skills = append(skills, skill)
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })

	return Registry{skills: skills, byName: byName, root: trimmed}, nil
}

func discoverSkillFiles(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			path := filepath.Join(root, name, "SKILL.md")
			info, err := os.Stat(path)
			if err == nil && !info.IsDir() {
				paths = append(paths, path)
			}
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), ".md") {
			paths = append(paths, filepath.Join(root, name))
		}
	}

	sort.Strings(paths)
	return paths, nil
}

type frontMatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Squad       string   `yaml:"squad"`
	ModelTier   string   `yaml:"model_tier"`
	Foundation  bool     `yaml:"foundation"`
	References  []string `yaml:"references"`
}

func parseSkillFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read skill %s: %w", path, err)
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")

	metaText, bodyText, hasFrontMatter := splitFrontMatter(content)
	var meta frontMatter
	if hasFrontMatter {
		if err := yaml.Unmarshal([]byte(metaText), &meta); err != nil {
			return Definition{}, fmt.Errorf("parse skill front matter %s: %w", path, err)
		}
	}

	refs, err := loadReferences(filepath.Dir(path), meta.References)
	if err != nil {
		return Definition{}, fmt.Errorf("skill %s: %w", path, err)
	}

	return Definition{
		Name:        strings.TrimSpace(meta.Name),
		Description: strings.TrimSpace(meta.Description),
		Squad:       strings.TrimSpace(meta.Squad),
		ModelTier:   strings.TrimSpace(meta.ModelTier),
		Foundation:  meta.Foundation,
		Body:        strings.TrimSpace(bodyText),
		References:  refs,
		SourcePath:  path,
	}, nil
}

// loadReferences reads each declared reference file relative to the skill's
// own directory. A reference escaping that directory is rejected.
func loadReferences(dir string, names []string) ([]Reference, error) {
	if len(names) == 0 {
		return nil, nil
	}
	refs := make([]Reference, 0, len(names))
	for _, name := range names {
		clean := filepath.Clean(name)
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
			return nil, fmt.Errorf("reference %q escapes skill directory", name)
		}
		data, err := os.ReadFile(filepath.Join(dir, clean))
		if err != nil {
			return nil, fmt.Errorf("read reference %s: %w", name, err)
		}
		refs = append(refs, Reference{Name: clean, Content: strings.TrimSpace(string(data))})
	}
	return refs, nil
}

func splitFrontMatter(content string) (string, string, bool) {
	lines := strings.Split(content, "\n")
	if len(lines) < 3 || strings.TrimSpace(lines[0]) != "---" {
		return "", content, false
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			meta := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return meta, body, true
		}
	}
	return "", content, false
}

// NormalizeName normalizes a skill name for lookups.
func NormalizeName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.ReplaceAll(name, " ", "-")
	return name
}
