// Package markdown renders markdown cells as plain terminal text.
package markdown

import "strings"

// Span represents a styled slice of text.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
	Code   bool
}

// ParseInline parses a subset of inline markdown: **bold**, *italic*,
// _italic_ and `code`. A marker without a closing partner is literal text.
func ParseInline(input string) []Span {
	var (
		spans []Span
		buf   strings.Builder
		cur   Span
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		s := cur
		s.Text = buf.String()
		spans = append(spans, s)
		buf.Reset()
	}
	for i := 0; i < len(input); {
		rest := input[i:]
		switch {
		case rest[0] == '\\' && len(rest) > 1:
			buf.WriteByte(rest[1])
			i += 2
			continue
		case rest[0] == '`' && (cur.Code || strings.Contains(rest[1:], "`")):
			flush()
			cur.Code = !cur.Code
			i++
			continue
		case cur.Code:
		case strings.HasPrefix(rest, "**") && (cur.Bold || strings.Contains(rest[2:], "**")):
			flush()
			cur.Bold = !cur.Bold
			i += 2
			continue
		case (rest[0] == '*' || rest[0] == '_') && (cur.Italic || strings.ContainsRune(rest[1:], rune(rest[0]))):
			flush()
			cur.Italic = !cur.Italic
			i++
			continue
		}
		buf.WriteByte(rest[0])
		i++
	}
	flush()
	return spans
}

// Strip returns the text of a line with inline markers removed.
func Strip(line string) string {
	var b strings.Builder
	for _, span := range ParseInline(line) {
		b.WriteString(span.Text)
	}
	return b.String()
}

// Render converts markdown source to plain text. Headings are underlined,
// list bullets normalized and fenced code indented.
func Render(source string) string {
	var (
		out   []string
		fence bool
	)
	for _, line := range strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			fence = !fence
			continue
		}
		if fence {
			out = append(out, "    "+line)
			continue
		}
		if level, text, ok := heading(trimmed); ok {
			text = Strip(text)
			rule := "-"
			if level == 1 {
				rule = "="
			}
			out = append(out, text, strings.Repeat(rule, len([]rune(text))))
			continue
		}
		if item, ok := bullet(line); ok {
			out = append(out, item)
			continue
		}
		out = append(out, Strip(line))
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

func heading(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	return level, strings.TrimSpace(line[level:]), true
}

func bullet(line string) (string, bool) {
	indent := len(line) - len(strings.TrimLeft(line, " "))
	trimmed := line[indent:]
	for _, marker := range []string{"- ", "* ", "+ "} {
		if strings.HasPrefix(trimmed, marker) {
			return strings.Repeat(" ", indent) + "• " + Strip(trimmed[len(marker):]), true
		}
	}
	return "", false
}
