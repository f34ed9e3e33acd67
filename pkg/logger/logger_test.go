package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"DEBUG", slog.LevelDebug, true},
		{"info", slog.LevelInfo, true},
		{" warn ", slog.LevelWarn, true},
		{"ERROR", slog.LevelError, true},
		{"", slog.LevelInfo, false},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNewWithLevel(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"development default", "", "", true, true},
		{"production default", "production", "", false, true},
		{"explicit warn", "", "WARN", false, false},
		{"production with debug", "production", "debug", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			l := NewWithLevel(tt.level)
			ctx := context.Background()
			if got := l.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := l.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
			if _, ok := l.Handler().(*callerHandler); !ok {
				t.Errorf("handler = %T, want *callerHandler", l.Handler())
			}
		})
	}
}

func TestCallerHandler_WithAttrsKeepsCaller(t *testing.T) {
	t.Setenv("ENV", "")
	l := NewWithLevel("").With("component", "test")
	if _, ok := l.Handler().(*callerHandler); !ok {
		t.Errorf("derived handler = %T, want *callerHandler", l.Handler())
	}
}

func TestTrimPathDepth(t *testing.T) {
	if got := trimPathDepth("a/b/c/d.go", 3); got != "b/c/d.go" {
		t.Errorf("trimPathDepth() = %q", got)
	}
	if got := trimPathDepth("d.go", 3); got != "d.go" {
		t.Errorf("trimPathDepth() = %q", got)
	}
}
