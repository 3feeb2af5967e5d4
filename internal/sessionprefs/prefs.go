// Package sessionprefs carries per-terminal display preferences through a
// context.
package sessionprefs

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultOutputLines is how many output lines are shown when FullOutput is off.
const DefaultOutputLines = 20

// Prefs captures display preferences of one interactive session.
type Prefs struct {
	mu          sync.Mutex
	fullOutput  bool
	outputLines int
}

type prefsKey struct{}

// New returns a new Prefs instance with defaults applied.
func New() *Prefs {
	return &Prefs{outputLines: DefaultOutputLines}
}

// FullOutput reports whether run output is shown untruncated.
func (p *Prefs) FullOutput() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fullOutput
}

// ToggleFullOutput flips FullOutput and returns the new value.
func (p *Prefs) ToggleFullOutput() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fullOutput = !p.fullOutput
	return p.fullOutput
}

// Clip shortens text to the configured line count unless FullOutput is set.
func (p *Prefs) Clip(text string) string {
	p.mu.Lock()
	full, limit := p.fullOutput, p.outputLines
	p.mu.Unlock()
	if full || limit <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= limit {
		return text
	}
	hidden := len(lines) - limit
	return strings.Join(lines[:limit], "\n") + "\n… " + plural(hidden, "more line")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// WithContext stores prefs in the context.
func WithContext(ctx context.Context, prefs *Prefs) context.Context {
	if ctx == nil || prefs == nil {
		return ctx
	}
	return context.WithValue(ctx, prefsKey{}, prefs)
}

// FromContext returns the prefs stored in the context, if any.
func FromContext(ctx context.Context) *Prefs {
	if ctx == nil {
		return nil
	}
	if value := ctx.Value(prefsKey{}); value != nil {
		if prefs, ok := value.(*Prefs); ok {
			return prefs
		}
	}
	return nil
}
