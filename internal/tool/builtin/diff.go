package builtin

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// previewContext is how many unchanged lines surround each change.
const previewContext = 2

// maxPreviewLines bounds the preview shown in an approval prompt.
const maxPreviewLines = 80

// Preview renders a line-oriented diff of before and after with "-" and "+"
// markers, headed by the file name.
func Preview(name, before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out []string
	out = append(out, "--- a/"+name, "+++ b/"+name)

	for i, d := range diffs {
		text := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			for _, l := range text {
				out = append(out, "-"+l)
			}
		case diffmatchpatch.DiffInsert:
			for _, l := range text {
				out = append(out, "+"+l)
			}
		case diffmatchpatch.DiffEqual:
			out = append(out, contextLines(text, i > 0, i < len(diffs)-1)...)
		}
	}

	if len(out) > maxPreviewLines {
		hidden := len(out) - maxPreviewLines
		out = append(out[:maxPreviewLines], fmt.Sprintf("... (%d more lines)", hidden))
	}
	return strings.Join(out, "\n")
}

// contextLines keeps the unchanged lines next to a change and elides the
// rest.
func contextLines(lines []string, afterChange, beforeChange bool) []string {
	var head, tail []string
	if afterChange {
		head = lines[:min(previewContext, len(lines))]
	}
	if beforeChange {
		tail = lines[max(len(lines)-previewContext, 0):]
	}
	if len(head)+len(tail) >= len(lines) {
		return prefix(" ", lines)
	}

	out := prefix(" ", head)
	out = append(out, "...")
	return append(out, prefix(" ", tail)...)
}

func prefix(p string, lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = p + l
	}
	return out
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}
