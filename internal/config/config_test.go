package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
guild_id: "730393851524808764"

discord:
  token_env: TY_TOKEN

channels:
  tickets_category: "1331362077616377957"
  ticket_forms: "1331362350497792123"
  notifications: "1331362764584783945"
  members_counter: "1331361549046255737"

roles:
  admin: ["849987497400467466", "892335197410951179"]
  responders: ["849987497400467466", "1077221347970777140"]
  member_defaults: ["877250538134175774"]

store:
  backend: sqlite
  sqlite_path: /var/lib/ticketyard/state.db

reconcile:
  throttle_ms: 250

tickets:
  help_ttl_sec: 30
  ack_ttl_sec: 5
  form_label: Open

members:
  counter_cron: "*/5 * * * *"
  counter_format: "All members: %d"

status:
  port: 9090

log:
  level: debug
`

const minimalYAML = `
guild_id: "1"
channels:
  ticket_forms: "2"
  notifications: "3"
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.GuildID != "730393851524808764" {
		t.Errorf("GuildID = %q, want %q", cfg.GuildID, "730393851524808764")
	}
	if cfg.Discord.TokenEnv != "TY_TOKEN" {
		t.Errorf("Discord.TokenEnv = %q, want %q", cfg.Discord.TokenEnv, "TY_TOKEN")
	}
	if cfg.Channels.TicketsCategory != "1331362077616377957" {
		t.Errorf("Channels.TicketsCategory = %q", cfg.Channels.TicketsCategory)
	}
	if cfg.Channels.MembersCounter != "1331361549046255737" {
		t.Errorf("Channels.MembersCounter = %q", cfg.Channels.MembersCounter)
	}
	if len(cfg.Roles.Admin) != 2 {
		t.Errorf("len(Roles.Admin) = %d, want 2", len(cfg.Roles.Admin))
	}
	if len(cfg.Roles.Responders) != 2 {
		t.Errorf("len(Roles.Responders) = %d, want 2", len(cfg.Roles.Responders))
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, BackendSQLite)
	}
	if cfg.Store.SQLitePath != "/var/lib/ticketyard/state.db" {
		t.Errorf("Store.SQLitePath = %q", cfg.Store.SQLitePath)
	}
	if cfg.ReconcileThrottle() != 250*time.Millisecond {
		t.Errorf("ReconcileThrottle() = %v, want 250ms", cfg.ReconcileThrottle())
	}
	if cfg.HelpTTL() != 30*time.Second {
		t.Errorf("HelpTTL() = %v, want 30s", cfg.HelpTTL())
	}
	if cfg.AckTTL() != 5*time.Second {
		t.Errorf("AckTTL() = %v, want 5s", cfg.AckTTL())
	}
	if cfg.Tickets.FormLabel != "Open" {
		t.Errorf("Tickets.FormLabel = %q, want %q", cfg.Tickets.FormLabel, "Open")
	}
	if cfg.Members.CounterCron != "*/5 * * * *" {
		t.Errorf("Members.CounterCron = %q", cfg.Members.CounterCron)
	}
	if cfg.Status.Port != 9090 {
		t.Errorf("Status.Port = %d, want 9090", cfg.Status.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestParse_MinimalConfig_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Discord.TokenEnv != "TOKEN" {
		t.Errorf("Discord.TokenEnv = %q, want %q (default)", cfg.Discord.TokenEnv, "TOKEN")
	}
	if cfg.Store.Backend != BackendFile {
		t.Errorf("Store.Backend = %q, want %q (default)", cfg.Store.Backend, BackendFile)
	}
	if cfg.Store.Dir != "db" {
		t.Errorf("Store.Dir = %q, want %q (default)", cfg.Store.Dir, "db")
	}
	if cfg.Store.MySQL.Port != 3306 {
		t.Errorf("Store.MySQL.Port = %d, want 3306 (default)", cfg.Store.MySQL.Port)
	}
	if cfg.Store.MySQL.User != "root" {
		t.Errorf("Store.MySQL.User = %q, want root (default)", cfg.Store.MySQL.User)
	}
	if cfg.Store.MySQL.Password() != "" {
		t.Errorf("Store.MySQL.Password() = %q, want empty without password_env", cfg.Store.MySQL.Password())
	}
	if cfg.ReconcileThrottle() != 500*time.Millisecond {
		t.Errorf("ReconcileThrottle() = %v, want 500ms (default)", cfg.ReconcileThrottle())
	}
	if cfg.HelpTTL() != 20*time.Second {
		t.Errorf("HelpTTL() = %v, want 20s (default)", cfg.HelpTTL())
	}
	if cfg.AckTTL() != 15*time.Second {
		t.Errorf("AckTTL() = %v, want 15s (default)", cfg.AckTTL())
	}
	if cfg.Tickets.FormLabel != "Submit" {
		t.Errorf("Tickets.FormLabel = %q, want %q (default)", cfg.Tickets.FormLabel, "Submit")
	}
	if cfg.Members.CounterCron != "*/10 * * * *" {
		t.Errorf("Members.CounterCron = %q, want default", cfg.Members.CounterCron)
	}
	if cfg.Status.Port != 0 {
		t.Errorf("Status.Port = %d, want 0 (disabled)", cfg.Status.Port)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info (default)", cfg.Log.Level)
	}
}

func TestParse_ZeroThrottleDisablesPause(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "reconcile: {throttle_ms: 0}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ReconcileThrottle() != 0 {
		t.Errorf("ReconcileThrottle() = %v, want 0", cfg.ReconcileThrottle())
	}
}

func TestParse_MySQLCredentials(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "store: {backend: mysql, mysql: {user: tickets, password_env: TY_DB_PASSWORD}}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Setenv("TY_DB_PASSWORD", "s3cret")
	if cfg.Store.MySQL.User != "tickets" {
		t.Errorf("Store.MySQL.User = %q, want tickets", cfg.Store.MySQL.User)
	}
	if cfg.Store.MySQL.Password() != "s3cret" {
		t.Errorf("Store.MySQL.Password() = %q, want s3cret", cfg.Store.MySQL.Password())
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing guild",
			yaml: "channels: {ticket_forms: '2', notifications: '3'}",
			want: "guild_id is required",
		},
		{
			name: "missing notifications channel",
			yaml: "guild_id: '1'\nchannels: {ticket_forms: '2'}",
			want: "channels.notifications is required",
		},
		{
			name: "missing forms channel",
			yaml: "guild_id: '1'\nchannels: {notifications: '3'}",
			want: "channels.ticket_forms is required",
		},
		{
			name: "unknown backend",
			yaml: minimalYAML + "store: {backend: redis}\n",
			want: `store.backend "redis"`,
		},
		{
			name: "negative throttle",
			yaml: minimalYAML + "reconcile: {throttle_ms: -1}\n",
			want: "throttle_ms must not be negative",
		},
		{
			name: "port out of range",
			yaml: minimalYAML + "status: {port: 70000}\n",
			want: "status.port 70000 out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_MultipleValidationErrors(t *testing.T) {
	_, err := Parse([]byte("log: {level: warn}"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"guild_id", "channels.notifications", "channels.ticket_forms"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want to contain %q", err.Error(), want)
		}
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte(":::invalid"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse:") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse:")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticketyard.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GuildID != "1" {
		t.Errorf("GuildID = %q, want %q", cfg.GuildID, "1")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/ticketyard.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestToken_FromEnv(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "discord: {token_env: TY_TEST_TOKEN}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("TY_TEST_TOKEN", "  secret  ")
	tok, err := cfg.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "secret" {
		t.Errorf("Token() = %q, want %q", tok, "secret")
	}

	t.Setenv("TY_TEST_TOKEN", "")
	if _, err := cfg.Token(); err == nil {
		t.Error("expected error for empty token env")
	}
}
