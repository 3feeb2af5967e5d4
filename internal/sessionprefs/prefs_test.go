package sessionprefs

import (
	"context"
	"strings"
	"testing"
)

func TestWithContextAndFromContext(t *testing.T) {
	prefs := New()
	prefs.ToggleFullOutput()

	ctx := WithContext(context.Background(), prefs)
	got := FromContext(ctx)
	if got == nil {
		t.Fatalf("expected prefs")
	}
	if !got.FullOutput() {
		t.Fatalf("expected pref to be preserved")
	}
}

func TestWithContextNil(t *testing.T) {
	var nilCtx context.Context
	ctx := WithContext(nilCtx, New())
	if ctx != nil {
		t.Fatalf("expected nil context")
	}
	ctx = WithContext(context.Background(), nil)
	if ctx == nil {
		t.Fatalf("expected non-nil context to pass through")
	}
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected no prefs for empty context")
	}
}

func TestClip(t *testing.T) {
	prefs := New()
	short := "a\nb"
	if got := prefs.Clip(short); got != short {
		t.Fatalf("expected short text untouched, got %q", got)
	}
	long := strings.Repeat("x\n", DefaultOutputLines) + "y"
	got := prefs.Clip(long)
	if !strings.HasSuffix(got, "… 1 more line") {
		t.Fatalf("unexpected clip %q", got)
	}
	if strings.Count(got, "\n") != DefaultOutputLines {
		t.Fatalf("expected %d kept lines, got %q", DefaultOutputLines, got)
	}
	prefs.ToggleFullOutput()
	if got := prefs.Clip(long); got != long {
		t.Fatalf("expected full text, got %q", got)
	}
}
