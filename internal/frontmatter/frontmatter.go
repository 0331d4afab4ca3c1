// Package frontmatter splits a Markdown file into its YAML frontmatter
// block and body, and rewrites the frontmatter block in place while
// preserving the body byte-for-byte.
//
// The split itself is deliberately dumb — find the leading "---" fence,
// find the next one, everything after is body — matching the tokenizer
// every one of these work-item files is written against elsewhere in
// the toolchain. Shape validation and field semantics live one layer up,
// in the sync engine.
package frontmatter

import (
	"fmt"
	"strings"
)

const fence = "---"

// Split separates a raw file's content into {data, body}. data is the
// YAML text between the two fences (not yet parsed); body is everything
// after the closing fence, including its leading newline stripped.
// A file with no opening fence is treated as pure body with empty data.
func Split(raw string) (data string, body string, err error) {
	if !strings.HasPrefix(raw, fence) {
		return "", raw, nil
	}
	rest := raw[len(fence):]
	// The opening fence must be followed by a newline.
	if !strings.HasPrefix(rest, "\n") && !strings.HasPrefix(rest, "\r\n") {
		return "", raw, nil
	}
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	idx := indexClosingFence(rest)
	if idx == -1 {
		return "", "", fmt.Errorf("frontmatter: no closing %q fence", fence)
	}

	data = rest[:idx]
	after := rest[idx+len(fence):]
	after = strings.TrimPrefix(after, "\r\n")
	after = strings.TrimPrefix(after, "\n")
	return data, after, nil
}

// indexClosingFence finds a line that is exactly "---" and returns the
// byte offset of that line's start, or -1.
func indexClosingFence(s string) int {
	offset := 0
	for {
		nl := strings.IndexByte(s[offset:], '\n')
		var line string
		lineEnd := offset
		if nl == -1 {
			line = s[offset:]
			lineEnd = len(s)
		} else {
			line = s[offset : offset+nl]
			lineEnd = offset + nl
		}
		trimmed := strings.TrimSuffix(line, "\r")
		if trimmed == fence {
			return offset
		}
		if nl == -1 {
			return -1
		}
		_ = lineEnd
		offset += nl + 1
	}
}

// Join reassembles a file from a (possibly rewritten) YAML data block and
// the original body, byte-for-byte on the body side.
func Join(data string, body string) string {
	var b strings.Builder
	b.WriteString(fence)
	b.WriteByte('\n')
	b.WriteString(data)
	if !strings.HasSuffix(data, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(fence)
	b.WriteByte('\n')
	b.WriteString(body)
	return b.String()
}
