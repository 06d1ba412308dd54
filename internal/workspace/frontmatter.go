package workspace

import (
	"strings"

	"cadence/internal/faults"
)

// Entity files are markdown with YAML-style frontmatter between two `---`
// lines. Frontmatter is deliberately simpler than YAML: each line is
// `key: value` split at the FIRST colon, colon-less lines and empty keys are
// ignored, and values are opaque single-line strings (metadata holds one-line
// JSON). The closing delimiter is the first `---` line after the opener, so a
// `---` inside a fenced body block is never mistaken for one.

// fmPair is one frontmatter line; writers keep fixed key order so files stay
// diff-stable.
type fmPair struct {
	key   string
	value string
}

// encodeDocument renders frontmatter pairs and a markdown body.
func encodeDocument(pairs []fmPair, body string) string {
	var b strings.Builder
	b.WriteString("---\n")
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		b.WriteString(p.key)
		b.WriteString(": ")
		b.WriteString(p.value)
		b.WriteString("\n")
	}
	b.WriteString("---\n\n")
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

// isDelimiter reports whether line is a frontmatter delimiter: exactly `---`
// with optional trailing whitespace.
func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t\r") == "---"
}

// decodeDocument splits content into frontmatter fields and body.
func decodeDocument(content string) (map[string]string, string, error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || !isDelimiter(lines[0]) {
		return nil, "", faults.New(faults.CodeParseError, "missing frontmatter opening delimiter")
	}

	fields := make(map[string]string)
	closing := -1
	for i := 1; i < len(lines); i++ {
		if isDelimiter(lines[i]) {
			closing = i
			break
		}
		line := lines[i]
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(line[idx+1:])
	}
	if closing < 0 {
		return nil, "", faults.New(faults.CodeParseError, "missing frontmatter closing delimiter")
	}

	body := strings.Join(lines[closing+1:], "\n")
	body = strings.TrimPrefix(body, "\n")
	return fields, body, nil
}

// bodySection extracts the verbatim content of a `## {name}` section,
// terminated by the next `## ` heading or end of body. The returned string
// has surrounding blank lines trimmed; interior newlines are preserved.
func bodySection(body, name string) string {
	lines := strings.Split(body, "\n")
	heading := "## " + name
	start := -1
	for i, line := range lines {
		if strings.TrimRight(line, " \t\r") == heading {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}
	end := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "## ") {
			end = i
			break
		}
	}
	return strings.Trim(strings.Join(lines[start:end], "\n"), "\n")
}

// subSection extracts a `### {name}` block inside an already-extracted
// section, terminated by the next `### ` heading or end of section.
func subSection(section, name string) string {
	lines := strings.Split(section, "\n")
	heading := "### " + name
	start := -1
	for i, line := range lines {
		if strings.TrimRight(line, " \t\r") == heading {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return ""
	}
	end := len(lines)
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "### ") {
			end = i
			break
		}
	}
	return strings.Trim(strings.Join(lines[start:end], "\n"), "\n")
}
