package yamlutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-docpipe/internal/yamlutil"
)

type siteConfig struct {
	Name  string   `yaml:"name"`
	Port  int      `yaml:"port"`
	Watch bool     `yaml:"watch"`
	Tags  []string `yaml:"tags"`
}

// ---------------------------------------------------------------------------
// TestUnmarshal - Lenient and strict decoding
// ---------------------------------------------------------------------------

func TestUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		strict  bool
		data    string
		dest    any
		wantErr error
		wantAny bool
	}{
		{name: "valid", data: "name: docs\nport: 8080\nwatch: true\ntags: [a, b]"},
		{name: "valid strict", strict: true, data: "name: docs"},
		{name: "unknown field lenient", data: "name: docs\nextra: 1"},
		{name: "unknown field strict", strict: true, data: "name: docs\nextra: 1", wantAny: true},
		{name: "empty", data: "", wantErr: yamlutil.ErrNilData},
		{name: "nil destination", data: "name: x", dest: nil, wantErr: yamlutil.ErrNilDestination},
		{name: "malformed", data: "name: [unclosed", wantAny: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var dest any = &siteConfig{}
			if tt.name == "nil destination" {
				dest = tt.dest
			}
			decode := yamlutil.Unmarshal
			if tt.strict {
				decode = yamlutil.UnmarshalStrict
			}
			err := decode([]byte(tt.data), dest)

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantAny:
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.HasPrefix(err.Error(), "yamlutil:") {
					t.Errorf("error = %q, want prefix 'yamlutil:'", err)
				}
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestUnmarshal_Fields(t *testing.T) {
	t.Parallel()
	var cfg siteConfig
	if err := yamlutil.UnmarshalStrict([]byte("name: docs\nport: 8080\nwatch: true\ntags: [a, b]"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "docs" || cfg.Port != 8080 || !cfg.Watch || len(cfg.Tags) != 2 {
		t.Errorf("decoded = %+v", cfg)
	}
}

// ---------------------------------------------------------------------------
// TestMarshal - Encoding back to YAML
// ---------------------------------------------------------------------------

func TestMarshal(t *testing.T) {
	t.Parallel()
	out, err := yamlutil.Marshal(siteConfig{Name: "docs", Port: 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back siteConfig
	if err := yamlutil.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Name != "docs" || back.Port != 1 {
		t.Errorf("decoded = %+v", back)
	}
}

// ---------------------------------------------------------------------------
// TestInputSizeLimit - MaxInputSize enforcement
// ---------------------------------------------------------------------------

// Modifies the global MaxInputSize, so neither this test nor its subtests
// run in parallel.

func TestInputSizeLimit(t *testing.T) {
	originalMax := yamlutil.MaxInputSize
	t.Cleanup(func() { yamlutil.MaxInputSize = originalMax })
	yamlutil.MaxInputSize = 100

	t.Run("input at limit succeeds", func(t *testing.T) {
		data := []byte("name: x" + strings.Repeat(" ", 93))
		if err := yamlutil.Unmarshal(data, &siteConfig{}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("input over limit names both sizes", func(t *testing.T) {
		data := []byte("name: x" + strings.Repeat(" ", 94))
		err := yamlutil.UnmarshalStrict(data, &siteConfig{})
		if !errors.Is(err, yamlutil.ErrInputTooLarge) {
			t.Fatalf("error = %v, want ErrInputTooLarge", err)
		}
		if !strings.Contains(err.Error(), "101 bytes") || !strings.Contains(err.Error(), "max 100") {
			t.Errorf("error = %q", err)
		}
	})

	t.Run("ReadFile rejects oversized files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "big.yaml")
		if err := os.WriteFile(path, make([]byte, 500), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := yamlutil.ReadFile(path); !errors.Is(err, yamlutil.ErrInputTooLarge) {
			t.Errorf("error = %v, want ErrInputTooLarge", err)
		}
	})

	t.Run("ReadFile missing file", func(t *testing.T) {
		_, err := yamlutil.ReadFile(filepath.Join(t.TempDir(), "none.yaml"))
		if !os.IsNotExist(err) {
			t.Errorf("error = %v, want not-exist", err)
		}
	})
}
