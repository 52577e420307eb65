package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a minimal config backed by a sqlite file in a temp dir.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	yaml := "slack:\n  bot_token: xoxb-test\n  signing_secret: test-secret\n" +
		"database:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "dw.db") + "\n" +
		"log:\n  level: error\n" + extra
	path := filepath.Join(dir, "dealwhisperer.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "dw dev") {
		t.Errorf("expected output to contain 'dw dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	for _, want := range []string{"dw 1.0.0", "commit: abc123", "built: 2026-01-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := runCmd(t, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"serve", "notify", "db", "crm", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help to list %q, got: %s", sub, out)
		}
	}
}

func TestSubcommandHelp_ConfigFlag(t *testing.T) {
	for _, args := range [][]string{
		{"serve", "--help"},
		{"notify", "--help"},
		{"db", "migrate", "--help"},
		{"db", "seed", "--help"},
		{"crm", "cold", "--help"},
		{"crm", "assertion", "--help"},
	} {
		t.Run(strings.Join(args[:len(args)-1], " "), func(t *testing.T) {
			out, err := runCmd(t, args...)
			if err != nil {
				t.Fatalf("help failed: %v", err)
			}
			if !strings.Contains(out, "--config") || !strings.Contains(out, defaultConfigPath) {
				t.Errorf("expected --config flag defaulting to %s, got: %s", defaultConfigPath, out)
			}
		})
	}
}

func TestCommands_MissingConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	for _, args := range [][]string{
		{"serve", "-c", missing},
		{"notify", "-c", missing},
		{"db", "migrate", "-c", missing},
		{"db", "seed", "-c", missing, "--map", "PM=U1"},
		{"crm", "cold", "-c", missing},
		{"crm", "assertion", "-c", missing},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := runCmd(t, args...)
			if err == nil {
				t.Fatal("expected error for missing config")
			}
			if !strings.Contains(err.Error(), "load config") {
				t.Errorf("error = %q, want load config failure", err)
			}
		})
	}
}

func TestLoadApp_OptionalIntegrationsOff(t *testing.T) {
	path := writeConfig(t, "")
	a, err := loadApp(t.Context(), path, new(bytes.Buffer))
	if err != nil {
		t.Fatalf("loadApp: %v", err)
	}
	defer a.Close()

	if a.crm != nil {
		t.Error("crm client built without salesforce settings")
	}
	if a.uploader != nil || a.people != nil {
		t.Error("optional integrations should be nil")
	}
	if _, err := a.replier.GenerateReply(t.Context(), "U1", "hi", "D1", "1.0"); err != errAgentNotConfigured {
		t.Errorf("GenerateReply error = %v, want errAgentNotConfigured", err)
	}
	if a.notifier == nil || a.store == nil || a.chat == nil {
		t.Error("core collaborators missing")
	}
	if err := a.store.Ping(t.Context()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNewDeduper_MemoryWithoutRedis(t *testing.T) {
	path := writeConfig(t, "")
	a, err := loadApp(t.Context(), path, new(bytes.Buffer))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	d, closeFn, err := newDeduper(a.cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	first, _ := d.FirstSeen(t.Context(), "Ev1")
	again, _ := d.FirstSeen(t.Context(), "Ev1")
	if !first || again {
		t.Errorf("FirstSeen = %v then %v, want true then false", first, again)
	}
}
