package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanofslack/zonesync/internal/apply"
	"github.com/evanofslack/zonesync/internal/config"
	"github.com/evanofslack/zonesync/internal/nameserver"
	"github.com/evanofslack/zonesync/internal/record"
	"github.com/evanofslack/zonesync/internal/reconcile"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   int
		stderr string
	}{
		{name: "success", err: nil, want: 0},
		{name: "drift", err: exitFor(reconcile.OutcomeDrift), want: 1},
		{name: "threshold", err: exitFor(reconcile.OutcomeThreshold), want: 3},
		{name: "generic error", err: errors.New("boom"), want: 2, stderr: "Error: boom"},
		{
			name:   "malformed",
			err:    fmt.Errorf("load zone: %w", &record.MalformedError{Source: "zones/a.yaml", Reason: "bad"}),
			want:   6,
			stderr: "malformed zone data in zones/a.yaml",
		},
		{
			name: "quorum",
			err:  &nameserver.InsufficientReachableError{Zone: "example.com.", Reachable: 0, Required: 1},
			want: 4,
		},
		{
			name: "partial",
			err:  &apply.PartialFailureError{Zone: "example.com.", Succeeded: 1, Failed: map[record.Key]error{{Name: "a.example.com.", Type: "A"}: errors.New("x")}},
			want: 5,
		},
		{
			name:   "missing credentials",
			err:    &config.MissingCredentialsError{Missing: map[string]string{"CF_API_TOKEN": "default"}},
			want:   2,
			stderr: "  - CF_API_TOKEN (provider: default)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := exitCode(&buf, tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
			if tt.stderr != "" && !strings.Contains(buf.String(), tt.stderr) {
				t.Errorf("stderr %q does not contain %q", buf.String(), tt.stderr)
			}
		})
	}
}

func TestExitCodePrecedence(t *testing.T) {
	tests := []struct {
		outcomes []reconcile.Outcome
		want     int
	}{
		{nil, 0},
		{[]reconcile.Outcome{reconcile.OutcomeOK, reconcile.OutcomeDrift}, 1},
		{[]reconcile.Outcome{reconcile.OutcomeDrift, reconcile.OutcomeThreshold}, 3},
		{[]reconcile.Outcome{reconcile.OutcomeThreshold, reconcile.OutcomeQuorum, reconcile.OutcomeDrift}, 4},
		{[]reconcile.Outcome{reconcile.OutcomePartial, reconcile.OutcomeQuorum}, 5},
		{[]reconcile.Outcome{reconcile.OutcomeMalformed, reconcile.OutcomePartial, reconcile.OutcomeOK}, 6},
	}
	for _, tt := range tests {
		err := exitFor(reconcile.Worst(tt.outcomes...))
		if got := exitCode(&bytes.Buffer{}, err); got != tt.want {
			t.Errorf("outcomes %v: exit code %d, want %d", tt.outcomes, got, tt.want)
		}
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"0", false},
		{"false", false},
		{"1", true},
		{"true", true},
		{"yes", true},
	}
	for _, tt := range tests {
		t.Setenv("ZONESYNC_TEST_BOOL", tt.value)
		if got := envBool("ZONESYNC_TEST_BOOL"); got != tt.want {
			t.Errorf("envBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestSyncFlagAlias(t *testing.T) {
	cmd := newCmdSync(&rootOptions{})
	if err := cmd.ParseFlags([]string{"--doit"}); err != nil {
		t.Fatal(err)
	}
	set, err := cmd.Flags().GetBool("apply")
	if err != nil {
		t.Fatal(err)
	}
	if !set {
		t.Error("--doit did not set --apply")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	t.Setenv("DEBUG", "")
	t.Setenv("QUIET", "")
	t.Setenv("ZONESYNC_ZONE", "")

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	code := exitCode(&stderr, root.Execute())
	return stdout.String() + stderr.String(), code
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", `
'':
  type: NS
  values: [ns1.example.com., ns2.example.com.]
www:
  type: A
  value: 1.2.3.4
`)
	bad := writeFile(t, dir, "bad.yaml", `
www:
  type: A
  value: not-an-address
`)
	cfg := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
log:
  level: error
zones:
  - name: example.com
    file: %s
  - name: example.org
    file: %s
`, good, bad))

	out, code := execute(t, "--config", cfg, "--zone", "example.com", "validate")
	if code != 0 {
		t.Fatalf("exit code %d, output:\n%s", code, out)
	}
	if !strings.Contains(out, "example.com.: "+good+" ok (2 records)") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, code = execute(t, "--config", cfg, "validate")
	if code != int(reconcile.OutcomeMalformed) {
		t.Fatalf("exit code %d, want %d, output:\n%s", code, reconcile.OutcomeMalformed, out)
	}
	if !strings.Contains(out, bad) {
		t.Errorf("error does not name the file:\n%s", out)
	}
}

func TestMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	zone := writeFile(t, dir, "example.com.yaml", "www:\n  type: A\n  value: 1.2.3.4\n")
	textfile := filepath.Join(dir, "zonesync.prom")
	cfg := writeFile(t, dir, "config.yaml", fmt.Sprintf(`
log:
  level: error
metrics:
  textfile: %s
zones:
  - name: example.com
    file: %s
`, textfile, zone))

	out, code := execute(t, "--config", cfg, "validate")
	if code != 0 {
		t.Fatalf("exit code %d, output:\n%s", code, out)
	}
	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`zonesync_runs_total{command="validate",outcome="ok"} 1`,
		"zonesync_run_duration_seconds_count 1",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}

func TestRunKeepsDefaultLogger(t *testing.T) {
	dir := t.TempDir()
	zone := writeFile(t, dir, "example.com.yaml", "www:\n  type: A\n  value: 1.2.3.4\n")
	cfg := writeFile(t, dir, "config.yaml", fmt.Sprintf("zones:\n  - name: example.com\n    file: %s\n", zone))

	before := slog.Default()
	if out, code := execute(t, "--config", cfg, "--debug", "validate"); code != 0 {
		t.Fatalf("exit code %d, output:\n%s", code, out)
	}
	if slog.Default() != before {
		t.Error("run replaced the process default logger")
	}
}

func TestUnknownZone(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", "zones:\n  - name: example.com\n")
	out, code := execute(t, "--config", cfg, "--zone", "example.net", "validate")
	if code != int(reconcile.OutcomeError) {
		t.Fatalf("exit code %d, output:\n%s", code, out)
	}
	if !strings.Contains(out, "zone example.net. is not configured") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, code := execute(t, "version")
	if code != 0 || !strings.HasPrefix(out, "zonesync version "+version) {
		t.Errorf("code %d, output %q", code, out)
	}
}
