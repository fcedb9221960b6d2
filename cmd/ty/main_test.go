package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/ticketyard/internal/db"
	"github.com/zulandar/ticketyard/internal/models"
	"github.com/zulandar/ticketyard/internal/store"
)

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

// writeConfig writes a config whose store lives under a fresh temp dir and
// returns the config path and that dir.
func writeConfig(t *testing.T, storeYAML string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	if storeYAML == "" {
		storeYAML = fmt.Sprintf("store:\n  backend: file\n  dir: %q\n", filepath.Join(dir, "records"))
	}
	body := `guild_id: "G1"
channels:
  notifications: "N"
  ticket_forms: "F"
` + storeYAML
	path := filepath.Join(dir, "ticketyard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dir
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "ty dev") {
		t.Errorf("expected output to contain 'ty dev', got: %s", out)
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
	if !strings.Contains(out, "ty 1.0.0 (commit: abc123, built: 2026-01-01)") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := runCmd(t, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"start", "records", "db", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q", sub)
		}
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	root := newRootCmd()
	want := map[string][]string{
		"records": {"list", "prune"},
		"db":      {"migrate"},
	}
	for parent, children := range want {
		var p *cobra.Command
		for _, c := range root.Commands() {
			if c.Name() == parent {
				p = c
			}
		}
		if p == nil {
			t.Fatalf("missing %q command", parent)
		}
		for _, child := range children {
			found := false
			for _, c := range p.Commands() {
				if c.Name() == child {
					found = true
				}
			}
			if !found {
				t.Errorf("missing %s %s", parent, child)
			}
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("log output = %s", buf.String())
	}
	if _, err := newLogger(&buf, "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestStart_MissingConfig(t *testing.T) {
	_, err := runCmd(t, "start", "-c", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Errorf("err = %v", err)
	}
}

func TestStart_MissingToken(t *testing.T) {
	path, _ := writeConfig(t, "")
	t.Setenv("TOKEN", "")
	_, err := runCmd(t, "start", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "TOKEN") {
		t.Errorf("err = %v, want missing token error", err)
	}
}

func TestRecordsList(t *testing.T) {
	path, dir := writeConfig(t, "")
	st := store.NewFileStore(filepath.Join(dir, "records"), zerolog.Nop())
	ctx := context.Background()
	recs := []store.Record{
		{Kind: store.KindIntakeForm, MessageID: "F1", ChannelID: "FC", Label: "Submit", Style: "danger", ChannelPrefix: "bug"},
		{Kind: store.KindIntakeForm, MessageID: "F2", ChannelID: "FC", Label: "Open", Style: "primary", ChannelPrefix: "support"},
	}
	for _, r := range recs {
		if err := st.Append(ctx, store.KindIntakeForm, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	out, err := runCmd(t, "records", "list", "ticket_forms", "-c", path)
	if err != nil {
		t.Fatalf("records list: %v", err)
	}
	if !strings.Contains(out, "prefix=bug style=danger") || !strings.Contains(out, "2 ticket_forms record(s)") {
		t.Errorf("output = %s", out)
	}
	if strings.Index(out, "F1") > strings.Index(out, "F2") {
		t.Error("records should be listed in insertion order")
	}
}

func TestRecordsList_Empty(t *testing.T) {
	path, _ := writeConfig(t, "")
	out, err := runCmd(t, "records", "list", "tickets", "-c", path)
	if err != nil {
		t.Fatalf("records list: %v", err)
	}
	if !strings.Contains(out, "No tickets records.") {
		t.Errorf("output = %s", out)
	}
}

func TestRecordsList_UnknownKind(t *testing.T) {
	path, _ := writeConfig(t, "")
	_, err := runCmd(t, "records", "list", "widgets", "-c", path)
	if err == nil || !strings.Contains(err.Error(), "unknown record kind") {
		t.Errorf("err = %v", err)
	}
}

func TestRecordsPrune(t *testing.T) {
	path, dir := writeConfig(t, "")
	st := store.NewFileStore(filepath.Join(dir, "records"), zerolog.Nop())
	ctx := context.Background()
	for _, id := range []string{"N1", "N2", "N3"} {
		rec := store.Record{Kind: store.KindNotification, MessageID: id, ChannelID: "N", TicketChannelID: "T" + id}
		if err := st.Append(ctx, store.KindNotification, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	out, err := runCmd(t, "records", "prune", "notifications", "N1", "N3", "N9", "-c", path)
	if err != nil {
		t.Fatalf("records prune: %v", err)
	}
	if !strings.Contains(out, "Pruned 2 notifications record(s), 1 left") {
		t.Errorf("output = %s", out)
	}
	left, err := st.LoadAll(ctx, store.KindNotification)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(left) != 1 || left[0].MessageID != "N2" {
		t.Errorf("left = %+v", left)
	}
}

func TestRecordsPrune_RequiresIDs(t *testing.T) {
	path, _ := writeConfig(t, "")
	if _, err := runCmd(t, "records", "prune", "tickets", "-c", path); err == nil {
		t.Error("expected error without message ids")
	}
}

func TestDBMigrate_FileBackend(t *testing.T) {
	path, _ := writeConfig(t, "")
	out, err := runCmd(t, "db", "migrate", "-c", path)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "nothing to migrate") {
		t.Errorf("output = %s", out)
	}
}

func TestDBMigrate_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "ty.db")
	path, _ := writeConfig(t, fmt.Sprintf("store:\n  backend: sqlite\n  sqlite_path: %q\n", dbPath))

	out, err := runCmd(t, "db", "migrate", "-c", path)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated 1 table(s)") {
		t.Errorf("output = %s", out)
	}

	gormDB, err := db.ConnectSQLite(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	if !gormDB.Migrator().HasTable(&models.SessionRecord{}) {
		t.Error("session_records table missing after migrate")
	}
}
