package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/alnah/go-docpipe/internal/config"
	"github.com/alnah/go-docpipe/store"
)

const doctorProbeTimeout = 5 * time.Second

// lookChrome locates a Chrome binary; replaced in tests.
var lookChrome = launcher.LookPath

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"` // "ready", "warnings", "errors"
	Site     siteInfo   `json:"site"`
	Cache    cacheInfo  `json:"cache"`
	Chrome   chromeInfo `json:"chrome"`
	Env      envInfo    `json:"environment"`
	System   systemInfo `json:"system"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// siteInfo holds docs root and base URL checks.
type siteInfo struct {
	Root       string `json:"root"`
	RootExists bool   `json:"root_exists"`
	BaseURL    string `json:"base_url,omitempty"`
}

// cacheInfo holds store reachability results.
type cacheInfo struct {
	Session   string `json:"session"`
	Durable   string `json:"durable"`
	SQLite    string `json:"sqlite_path,omitempty"`
	Reachable bool   `json:"reachable"`
}

// chromeInfo holds Chrome/Chromium detection results.
type chromeInfo struct {
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Sandbox bool   `json:"sandbox"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
	NoSandbox     string `json:"rod_no_sandbox"`
	BrowserBin    string `json:"rod_browser_bin"`
}

// systemInfo holds system check results.
type systemInfo struct {
	TempWritable bool `json:"temp_writable"`
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found, 2 = bad flags
// or config.
func runDoctorCmd(ctx context.Context, args []string, env *Environment) int {
	flags, _, err := parseDoctorFlags(args, env.Stderr)
	if err != nil {
		return reportError(env, err)
	}
	cfg, err := loadConfig(&flags.common, env)
	if err != nil {
		return reportError(env, err)
	}

	result := runDoctor(ctx, cfg, env.Getenv)

	if flags.json {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == "errors" {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor(ctx context.Context, cfg *config.Config, getenv func(string) string) *doctorResult {
	result := &doctorResult{
		Status: "ready",
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			NoSandbox:  getenv("ROD_NO_SANDBOX"),
			BrowserBin: getenv("ROD_BROWSER_BIN"),
		},
	}

	checkSite(result, cfg)
	checkCache(ctx, result, cfg)
	checkChrome(result)
	checkEnvironment(result, getenv)
	checkSystem(result)

	if len(result.Errors) > 0 {
		result.Status = "errors"
	} else if len(result.Warnings) > 0 {
		result.Status = "warnings"
	}

	return result
}

// checkSite verifies the docs root exists. A remote base URL makes the
// root optional.
func checkSite(result *doctorResult, cfg *config.Config) {
	result.Site.Root = cfg.Site.Root
	result.Site.BaseURL = cfg.Site.BaseURL

	info, err := os.Stat(cfg.Site.Root)
	result.Site.RootExists = err == nil && info.IsDir()
	if result.Site.RootExists {
		return
	}
	msg := fmt.Sprintf("Docs root %s is not a directory", cfg.Site.Root)
	if cfg.Site.BaseURL == "" {
		result.Errors = append(result.Errors, msg+". Set site.root or --root")
	} else {
		result.Warnings = append(result.Warnings, msg+"; preload globs and serve need it")
	}
}

// checkCache opens the configured stores and closes them again.
func checkCache(ctx context.Context, result *doctorResult, cfg *config.Config) {
	result.Cache.Session = cfg.Cache.Session
	result.Cache.Durable = cfg.Cache.Durable
	if cfg.Cache.Durable == config.StoreSQLite {
		if path, err := sqlitePath(cfg); err == nil {
			result.Cache.SQLite = path
		}
	}

	ctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()

	var opened []store.Store
	defer func() {
		for _, s := range opened {
			_ = s.Close()
		}
	}()

	session, err := openSessionStore(ctx, cfg)
	if err != nil {
		result.Errors = append(result.Errors, "Session store: "+firstLine(err))
		return
	}
	opened = append(opened, session)
	durable, err := openDurableStore(ctx, cfg)
	if err != nil {
		result.Errors = append(result.Errors, "Durable store: "+firstLine(err))
		return
	}
	opened = append(opened, durable)
	result.Cache.Reachable = true
}

// checkChrome detects Chrome/Chromium installation. It only warns: every
// command but pdf works without a browser.
func checkChrome(result *doctorResult) {
	chromePath := result.Env.BrowserBin

	if chromePath == "" {
		var found bool
		chromePath, found = lookChrome()
		if !found {
			result.Warnings = append(result.Warnings,
				"Chrome/Chromium not found; 'docpipe pdf' needs it. Install Chrome or set ROD_BROWSER_BIN")
			return
		}
	}

	if _, err := os.Stat(chromePath); err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Chrome not found at %s", chromePath))
		return
	}

	result.Chrome.Found = true
	result.Chrome.Path = chromePath

	out, err := exec.Command(chromePath, "--version").Output() // #nosec G204 -- configured browser binary
	if err == nil {
		result.Chrome.Version = strings.TrimSpace(string(out))
	} else {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Could not get Chrome version: %v", err))
	}

	result.Chrome.Sandbox = result.Env.NoSandbox != "1"
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult, getenv func(string) string) {
	result.Env.Container, result.Env.ContainerHint = isContainer(getenv)

	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"} {
		if getenv(v) != "" {
			result.Env.CI = true
			break
		}
	}

	if (result.Env.Container || result.Env.CI) && result.Env.NoSandbox != "1" {
		result.Warnings = append(result.Warnings,
			"Container/CI detected but ROD_NO_SANDBOX not set. Set ROD_NO_SANDBOX=1")
	}
}

// isContainer detects if running in a container environment.
// Returns (isContainer, hint) where hint indicates which signal was detected.
func isContainer(getenv func(string) string) (bool, string) {
	if getenv("DOCPIPE_CONTAINER") == "1" {
		return true, "DOCPIPE_CONTAINER=1"
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true, "/.dockerenv"
	}
	if v := getenv("container"); v != "" {
		return true, "container=" + v
	}
	if getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// checkSystem verifies the temp directory used for PDF export is writable.
func checkSystem(result *doctorResult) {
	tmpDir := os.TempDir()
	testFile := filepath.Join(tmpDir, "docpipe-doctor-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Temp directory not writable: %s", tmpDir))
	} else {
		_ = os.Remove(testFile)
		result.System.TempWritable = true
	}
}

func firstLine(err error) string {
	msg, _, _ := strings.Cut(err.Error(), "\n")
	return msg
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "docpipe doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Site")
	if r.Site.RootExists {
		fmt.Fprintf(w, "  [OK] Docs root: %s\n", r.Site.Root)
	} else {
		fmt.Fprintf(w, "  [WARN] Docs root missing: %s\n", r.Site.Root)
	}
	if r.Site.BaseURL != "" {
		fmt.Fprintf(w, "  [OK] Base URL: %s\n", r.Site.BaseURL)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Cache")
	fmt.Fprintf(w, "  [OK] Session store: %s\n", r.Cache.Session)
	fmt.Fprintf(w, "  [OK] Durable store: %s\n", r.Cache.Durable)
	if r.Cache.SQLite != "" {
		fmt.Fprintf(w, "  [OK] SQLite file: %s\n", r.Cache.SQLite)
	}
	if r.Cache.Reachable {
		fmt.Fprintln(w, "  [OK] Stores: reachable")
	} else {
		fmt.Fprintln(w, "  [ERROR] Stores: unreachable")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Chrome/Chromium")
	if r.Chrome.Found {
		fmt.Fprintf(w, "  [OK] Found at %s\n", r.Chrome.Path)
		if r.Chrome.Version != "" {
			fmt.Fprintf(w, "  [OK] Version: %s\n", r.Chrome.Version)
		}
		if r.Chrome.Sandbox {
			fmt.Fprintln(w, "  [OK] Sandbox: enabled")
		} else {
			fmt.Fprintln(w, "  [OK] Sandbox: disabled (ROD_NO_SANDBOX=1)")
		}
	} else {
		fmt.Fprintln(w, "  [WARN] Not found")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		fmt.Fprintf(w, "  [OK] Container: detected (%s)\n", r.Env.ContainerHint)
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] CI: detected")
	}
	if r.System.TempWritable {
		fmt.Fprintln(w, "  [OK] Temp directory: writable")
	} else {
		fmt.Fprintln(w, "  [ERROR] Temp directory: not writable")
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case "ready":
		fmt.Fprintln(w, "Status: Ready")
	case "warnings":
		fmt.Fprintln(w, "Status: Ready with warnings")
	case "errors":
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
