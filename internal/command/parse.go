package command

import (
	"strconv"
	"strings"
)

// Command represents a parsed slash command.
type Command struct {
	Name      string
	Args      []string
	Raw       string
	Remainder string
}

// Parse parses a line and returns a Command if it starts with "/".
func Parse(input string) (Command, bool) {
	trimmed := strings.TrimLeft(input, " \t")
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	raw := strings.TrimSpace(trimmed[1:])
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Command{Name: "", Raw: raw}, true
	}
	args := []string{}
	if len(fields) > 1 {
		args = fields[1:]
	}
	return Command{
		Name:      strings.ToLower(fields[0]),
		Args:      args,
		Raw:       raw,
		Remainder: remainderAfterTokens(raw, 1),
	}, true
}

// After returns the raw text following the command name and the first n
// arguments, with surrounding whitespace removed.
func (c Command) After(n int) string {
	return remainderAfterTokens(c.Raw, n+1)
}

// Arg returns argument i lower-cased, or "" when absent.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return strings.ToLower(c.Args[i])
}

// unescape turns typed escape sequences (\n, \t, \\) into their characters.
// Input that does not form a valid quoted string is returned unchanged.
func unescape(text string) string {
	if !strings.Contains(text, `\`) {
		return text
	}
	quoted := `"` + strings.ReplaceAll(text, `"`, `\"`) + `"`
	out, err := strconv.Unquote(quoted)
	if err != nil {
		return text
	}
	return out
}

func remainderAfterTokens(raw string, count int) string {
	i := 0
	remaining := count
	for remaining > 0 && i < len(raw) {
		for i < len(raw) && isSpace(raw[i]) {
			i++
		}
		for i < len(raw) && !isSpace(raw[i]) {
			i++
		}
		remaining--
	}
	if i >= len(raw) {
		return ""
	}
	return strings.TrimSpace(raw[i:])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
