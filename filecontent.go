package tmppostgres

import (
	"strings"
)

type fileStrategy int

const (
	fileUnset fileStrategy = iota
	fileAppend
	fileReplace
)

// FileContent is the postgresql.conf strategy of a configuration layer.
//
// AppendLines adds settings on top of whatever the layers to its right
// produce. ReplaceLines fixes the file content outright; nothing to its
// right can change it. The zero value contributes nothing.
type FileContent struct {
	strategy fileStrategy
	lines    []string
	// overlaid marks Replace content with appended lines in front of it.
	overlaid bool
}

// AppendLines returns a strategy that adds lines to the default file.
func AppendLines(lines ...string) FileContent {
	return FileContent{strategy: fileAppend, lines: lines}
}

// ReplaceLines returns a strategy that uses exactly these lines as the file.
// They are written as given, one per line; postgres honors the last of
// repeated settings.
func ReplaceLines(lines ...string) FileContent {
	return FileContent{strategy: fileReplace, lines: lines}
}

// IsAppend reports whether the strategy is still additive.
func (f FileContent) IsAppend() bool { return f.strategy == fileAppend }

// IsReplace reports whether the strategy fixes the content.
func (f FileContent) IsReplace() bool { return f.strategy == fileReplace }

// Lines returns the lines carried by the strategy.
func (f FileContent) Lines() []string { return f.lines }

// Merge combines two strategies with f on the left:
//
//	Replace(x) + _          = Replace(x)
//	Append(x)  + Append(y)  = Append(x ++ y)
//	Append(x)  + Replace(y) = Replace(x ++ y)
//
// and the zero value is the identity on both sides. Appending no lines onto
// Replace(y) leaves it untouched.
func (f FileContent) Merge(other FileContent) FileContent {
	switch {
	case f.strategy == fileUnset:
		return other
	case other.strategy == fileUnset:
		return f
	case f.strategy == fileReplace:
		return f
	case other.strategy == fileReplace:
		if len(f.lines) == 0 {
			return other
		}
		return FileContent{strategy: fileReplace, lines: concatLines(f.lines, other.lines), overlaid: true}
	}
	return FileContent{strategy: fileAppend, lines: concatLines(f.lines, other.lines)}
}

func concatLines(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// render turns resolved Replace content into postgresql.conf text. Plain
// Replace content is written as given. Content appended onto a base keeps
// only the first occurrence of each setting, so the leftmost layer wins even
// though postgres itself honors the last one.
func (f FileContent) render() string {
	var b strings.Builder
	if !f.overlaid {
		for _, line := range f.lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		return b.String()
	}

	seen := make(map[string]bool, len(f.lines))
	for _, line := range f.lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if key, ok := settingKey(line); ok {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// settingKey extracts the lower-cased parameter name from a "key = value"
// or "key value" line. Comments and include directives have no key.
func settingKey(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	key := line
	if i := strings.IndexAny(line, "= \t"); i >= 0 {
		key = line[:i]
	}
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "include") {
		return "", false
	}
	return key, key != ""
}
