package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"forms2xml/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, nil, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, nil, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestDepsReportsStubbedTools(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "deps")
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	requireContains(t, out, "frmf2xml")
	requireContains(t, out, "frmxml2f")
	requireContains(t, out, "OK")
}

func TestDepsFailsWhenToolsMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Forms.F2XBinary = "forms2xml-test-missing-frmf2xml"
	cfg.Forms.X2FBinary = "forms2xml-test-missing-frmxml2f"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "forms2xml.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, nil, []string{"--config", configPath, "deps"})
	if err == nil {
		t.Fatal("expected deps to fail")
	}
	requireContains(t, err.Error(), "failed checks")
	requireContains(t, out, "ERROR")
}

func TestSubmitFileRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()

	module := testsupport.ModuleBytes(300)
	src := testsupport.WriteFile(t, filepath.Join(dir, "orders.fmb"), module)
	xmlPath := filepath.Join(dir, "orders_fmb.xml")
	backPath := filepath.Join(dir, "orders_back.fmb")

	if _, stderr, err := env.run(t, "submit", src, xmlPath); err != nil {
		t.Fatalf("submit binary: %v (%s)", err, stderr)
	}
	if _, stderr, err := env.run(t, "submit", xmlPath, backPath); err != nil {
		t.Fatalf("submit xml: %v (%s)", err, stderr)
	}

	back, err := os.ReadFile(backPath)
	if err != nil {
		t.Fatalf("read round trip: %v", err)
	}
	if !bytes.Equal(back, module) {
		t.Fatalf("round trip mismatch")
	}
	for _, name := range testsupport.DirEntries(t, dir) {
		if strings.HasSuffix(name, ".part") {
			t.Fatalf("temporary output left behind: %s", name)
		}
	}
}

func TestSubmitStdinToStdout(t *testing.T) {
	env := setupCLITestEnv(t)

	module := testsupport.ModuleBytes(128)
	out, _, err := runCLI(t, bytes.NewReader(module),
		[]string{"--addr", env.addr, "--config", env.configPath, "submit"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out != string(testsupport.EncodeXML(module)) {
		t.Fatalf("unexpected stdout %q", out)
	}
}

func TestSubmitFailureLeavesNoOutput(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()

	src := testsupport.WriteFile(t, filepath.Join(dir, "broken.fmb"), []byte(testsupport.BrokenMarker+" module"))
	dst := filepath.Join(dir, "broken_fmb.xml")
	_, _, err := env.run(t, "submit", src, dst)
	if err == nil {
		t.Fatal("expected submit to fail")
	}
	requireContains(t, err.Error(), "500")
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file, stat err=%v", statErr)
	}
	if entries := testsupport.DirEntries(t, dir); len(entries) != 1 {
		t.Fatalf("expected only the source to remain, got %v", entries)
	}
}

func TestSubmitServerPathWithRemoteDestination(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()

	src := testsupport.WriteFile(t, filepath.Join(dir, "menu.fmb"), testsupport.ModuleBytes(64))
	remote := filepath.Join(dir, "menu_fmb.xml")
	_, stderr, err := env.run(t, "submit", "--server-path", "--remote-dst", remote, src)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, stderr, "file://")
	if _, err := os.Stat(remote); err != nil {
		t.Fatalf("expected gateway to write %s: %v", remote, err)
	}
}

func TestStatusShowsRunningGateway(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "listening on "+env.addr)
	requireContains(t, out, "frmf2xml")
}

func TestHistoryOnlineAndOffline(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()

	src := testsupport.WriteFile(t, filepath.Join(dir, "orders.fmb"), testsupport.ModuleBytes(32))
	if _, _, err := env.run(t, "submit", src, filepath.Join(dir, "orders_fmb.xml")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	out, _, err := env.run(t, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "binary_to_xml")
	requireContains(t, out, "success")

	out, _, err = env.run(t, "history", "--offline")
	if err != nil {
		t.Fatalf("history --offline: %v", err)
	}
	requireContains(t, out, "binary_to_xml")
}

func TestHistoryFallsBackToJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "forms2xml.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, nil, []string{"--addr", "127.0.0.1:1", "--config", configPath, "history"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No conversions recorded")
}

func TestDialAddress(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:8008": "127.0.0.1:8008",
		":8008":          "127.0.0.1:8008",
		"0.0.0.0:9000":   "127.0.0.1:9000",
		"[::]:9000":      "[::1]:9000",
		"gateway:8008":   "gateway:8008",
	}
	for bind, want := range tests {
		if got := dialAddress(bind); got != want {
			t.Fatalf("dialAddress(%q) = %q, want %q", bind, got, want)
		}
	}
}
