package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// TestRunHelp - Per-command help
// ---------------------------------------------------------------------------

func TestRunHelp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr error
	}{
		{"no args lists commands", nil, "Commands:", nil},
		{"render", []string{"render"}, "docpipe render <key>", nil},
		{"preload", []string{"preload"}, "docs/**/*.md", nil},
		{"serve", []string{"serve"}, "--no-watch", nil},
		{"downloads", []string{"downloads"}, "[version|latest]", nil},
		{"man", []string{"man"}, "<name.N>", nil},
		{"pdf", []string{"pdf"}, "--paper", nil},
		{"clear", []string{"clear"}, "--images", nil},
		{"config", []string{"config"}, "DOCPIPE_*", nil},
		{"doctor", []string{"doctor"}, "--json", nil},
		{"version", []string{"version"}, "docpipe version", nil},
		{"help", []string{"help"}, "docpipe help", nil},
		{"unknown", []string{"bogus"}, "", ErrUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			err := runHelp(tt.args, &Environment{Stdout: &stdout, Stderr: &stderr})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("runHelp() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(stdout.String(), tt.want) {
				t.Errorf("stdout %q should contain %q", stdout.String(), tt.want)
			}
		})
	}
}

func TestCommandUsage_CommonFlags(t *testing.T) {
	t.Parallel()

	for name, usage := range commandUsage {
		var buf bytes.Buffer
		usage(&buf)
		if !strings.Contains(buf.String(), "--base-url") {
			t.Errorf("%s usage is missing the common flags", name)
		}
	}
}
