package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"slidecast/internal/config"
	"slidecast/internal/daemon"
	"slidecast/internal/media/ffmpeg"
	"slidecast/internal/render"
	"slidecast/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	apiAddr    string
}

type cliRunner struct{}

func (cliRunner) Run(ctx context.Context, req ffmpeg.Request, progress func(ffmpeg.ProgressUpdate)) error {
	return os.WriteFile(req.Output.Path, []byte("media"), 0o644)
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	store := testsupport.MustOpenStore(t, cfg)
	orchestrator := render.NewOrchestrator(cfg, store, nil, render.WithRunner(cliRunner{}))
	d, err := daemon.New(cfg, store, orchestrator, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	return &cliTestEnv{cfg: cfg, configPath: configPath, apiAddr: d.Addr()}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()

	full := args
	if env != nil {
		full = append(full, "--config", env.configPath, "--api", env.apiAddr)
	}

	cmd := newRootCommand()
	cmd.SetArgs(full)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	err := cmd.Execute()
	return buf.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("output %q does not contain %q", haystack, needle)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCLI(t, nil, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, nil, "config", "init", "--path", target); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
	if _, err := runCLI(t, nil, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestSubmitListAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	projectDir := testsupport.WriteProject(t, testsupport.WithSlides(2))

	out, err := runCLI(t, env, "submit", projectDir, "--name", "cli job")
	if err != nil {
		t.Fatalf("submit: %v\n%s", err, out)
	}
	requireContains(t, out, "Queued job")
	requireContains(t, out, "2 scene(s)")

	out, err = runCLI(t, env, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "cli job")

	out, err = runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running")
	requireContains(t, out, "ffmpeg")
}

func TestCancelUnknownJobFails(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, err := runCLI(t, env, "cancel", "missing"); err == nil {
		t.Fatal("cancelling an unknown job should fail")
	}
}

func TestListEmptyQueue(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, env, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}
