package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"forms2xml/internal/testsupport"
)

const forms6Module = `<?xml version="1.0" encoding="UTF-8"?>
<Module version="60000000">
  <FormModule Name="ORDERS" RuntimeComp="5.0">
    <Block Name="B1"><Item Name="I1" XPosition="2" ParentModule="OLD_LIB"/></Block>
    <Window Name="ROOT_WINDOW" Width="80"/>
  </FormModule>
</Module>
`

func TestTransformFileToFile(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()
	src := testsupport.WriteFile(t, filepath.Join(dir, "orders.xml"), []byte(forms6Module))
	dst := filepath.Join(dir, "orders11.xml")

	_, stderr, err := env.run(t, "transform", src, dst)
	if err != nil {
		t.Fatalf("transform: %v (%s)", err, stderr)
	}
	out, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	requireContains(t, string(out), `Name="W_MAIN"`)
	requireContains(t, string(out), `XPosition="24"`)
	requireContains(t, stderr, "ORDERS subclasses from unknown libraries: OLD_LIB")
}

func TestTransformStdinToStdoutWithCellSize(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, strings.NewReader(forms6Module),
		[]string{"--addr", env.addr, "--config", env.configPath, "transform", "--cell-width", "10"})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	requireContains(t, out, `XPosition="20"`)
}

func TestTransformRejectsMalformedXML(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()
	src := testsupport.WriteFile(t, filepath.Join(dir, "bad.xml"), []byte("<Module><FormModule>"))
	dst := filepath.Join(dir, "out.xml")

	if _, _, err := env.run(t, "transform", src, dst); err == nil {
		t.Fatal("expected transform to fail")
	}
	if entries := testsupport.DirEntries(t, dir); len(entries) != 1 {
		t.Fatalf("expected only the source to remain, got %v", entries)
	}
}

func TestUpgradeWritesSuffixedModule(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()
	module := testsupport.ModuleBytes(200)
	src := testsupport.WriteFile(t, filepath.Join(dir, "orders.fmb"), module)

	out, stderr, err := env.run(t, "upgrade", src)
	if err != nil {
		t.Fatalf("upgrade: %v (%s)", err, stderr)
	}
	dst := filepath.Join(dir, "orders-v11.fmb")
	requireContains(t, out, "Upgraded "+src+" -> "+dst)
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read upgraded module: %v", err)
	}
	if !bytes.Equal(got, module) {
		t.Fatalf("upgraded module mismatch")
	}
}

func TestUpgradeAliasWithExplicitDestination(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()
	src := testsupport.WriteFile(t, filepath.Join(dir, "orders.fmb"), testsupport.ModuleBytes(64))
	dst := filepath.Join(dir, "out.fmb")

	if _, stderr, err := env.run(t, "6to11", "--no-transform", "--keep-xml", src, dst); err != nil {
		t.Fatalf("6to11: %v (%s)", err, stderr)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected %s: %v", dst, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "orders.xml")); err != nil {
		t.Fatalf("expected kept source XML: %v", err)
	}
}

func TestUpgradeRefusesToOverwriteSource(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := t.TempDir()
	module := testsupport.ModuleBytes(64)
	src := testsupport.WriteFile(t, filepath.Join(dir, "orders.fmb"), module)

	_, _, err := env.run(t, "upgrade", src, src)
	if err == nil {
		t.Fatal("expected upgrade to fail")
	}
	requireContains(t, err.Error(), "destination is the source module")
	got, _ := os.ReadFile(src)
	if !bytes.Equal(got, module) {
		t.Fatal("source module modified")
	}
}

func TestUpgradeRejectsBadSuffix(t *testing.T) {
	env := setupCLITestEnv(t)
	src := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "orders.fmb"), testsupport.ModuleBytes(64))
	_, _, err := env.run(t, "upgrade", "--suffix", "../x", src)
	if err == nil {
		t.Fatal("expected upgrade to fail")
	}
	requireContains(t, err.Error(), "invalid --suffix")
}

func TestWatchUpgradesNewModules(t *testing.T) {
	env := setupCLITestEnv(t)
	srcDir := t.TempDir()
	dstDir := t.TempDir()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--addr", env.addr, "--config", env.configPath,
		"watch", "--settle", "20ms", "--retries", "2", srcDir, dstDir})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("watch did not stop")
		}
	})
	time.Sleep(100 * time.Millisecond)

	module := testsupport.ModuleBytes(128)
	testsupport.WriteFile(t, filepath.Join(srcDir, "orders.fmb"), module)
	testsupport.WriteFile(t, filepath.Join(srcDir, "readme.txt"), []byte("not a module"))

	dst := filepath.Join(dstDir, "orders.fmb")
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := os.ReadFile(dst)
		if err == nil && bytes.Equal(got, module) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("module not upgraded into %s (stderr %s)", dst, stderr.String())
		}
		time.Sleep(20 * time.Millisecond)
	}
	for _, name := range testsupport.DirEntries(t, dstDir) {
		if name != "orders.fmb" {
			t.Fatalf("unexpected file in destination: %s", name)
		}
	}
}

func TestIsUpgradeCandidate(t *testing.T) {
	tests := []struct {
		path    string
		inPlace bool
		want    bool
	}{
		{"/in/orders.fmb", false, true},
		{"/in/ORDERS.FMB", false, true},
		{"/in/orders-v11.fmb", false, true},
		{"/in/orders-v11.fmb", true, false},
		{"/in/orders.fmb", true, true},
		{"/in/.orders.fmb.123.part", false, false},
		{"/in/orders.xml", false, false},
	}
	for _, tt := range tests {
		if got := isUpgradeCandidate(tt.path, "-v11", tt.inPlace); got != tt.want {
			t.Fatalf("isUpgradeCandidate(%q, inPlace=%v) = %v, want %v", tt.path, tt.inPlace, got, tt.want)
		}
	}
}
