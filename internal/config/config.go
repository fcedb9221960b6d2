// Package config provides YAML-based configuration loading for Ticketyard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
)

// Config is the top-level Ticketyard configuration, loaded from ticketyard.yaml.
type Config struct {
	GuildID   string          `yaml:"guild_id"`
	Discord   DiscordConfig   `yaml:"discord"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Roles     RolesConfig     `yaml:"roles"`
	Store     StoreConfig     `yaml:"store"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Tickets   TicketsConfig   `yaml:"tickets"`
	Members   MembersConfig   `yaml:"members"`
	Status    StatusConfig    `yaml:"status"`
	Log       LogConfig       `yaml:"log"`
}

// DiscordConfig holds gateway settings. The token itself never lives in the
// file; TokenEnv names the environment variable that carries it.
type DiscordConfig struct {
	TokenEnv string `yaml:"token_env"`
}

// ChannelsConfig holds the well-known channel and category IDs of the guild.
type ChannelsConfig struct {
	TicketsCategory string `yaml:"tickets_category"`
	TicketForms     string `yaml:"ticket_forms"`
	Notifications   string `yaml:"notifications"`
	MembersCounter  string `yaml:"members_counter"`
}

// RolesConfig holds role ID allow-lists.
type RolesConfig struct {
	Admin          []string `yaml:"admin"`
	Responders     []string `yaml:"responders"`
	MemberDefaults []string `yaml:"member_defaults"`
}

// StoreConfig selects and configures the session record store.
type StoreConfig struct {
	Backend    string      `yaml:"backend"`
	Dir        string      `yaml:"dir"`
	SQLitePath string      `yaml:"sqlite_path"`
	MySQL      MySQLConfig `yaml:"mysql"`
}

// MySQLConfig holds connection settings for a MySQL-compatible server. Like
// the bot token, the password is read from the environment variable named by
// PasswordEnv.
type MySQLConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
	Database    string `yaml:"database"`
}

// Password returns the database password, empty when PasswordEnv is unset.
func (m MySQLConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// ReconcileConfig tunes the startup reconciliation pass.
type ReconcileConfig struct {
	// ThrottleMs is the pause between re-binds. Unset means the default;
	// an explicit 0 disables the pause.
	ThrottleMs *int `yaml:"throttle_ms"`
}

const defaultThrottleMs = 500

// TicketsConfig tunes ticket panel behavior.
type TicketsConfig struct {
	HelpTTLSec int    `yaml:"help_ttl_sec"`
	AckTTLSec  int    `yaml:"ack_ttl_sec"`
	FormLabel  string `yaml:"form_label"`
}

// MembersConfig tunes the member counter.
type MembersConfig struct {
	CounterCron   string `yaml:"counter_cron"`
	CounterFormat string `yaml:"counter_format"`
}

// StatusConfig configures the HTTP status server. Port 0 disables it.
type StatusConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Discord.TokenEnv == "" {
		c.Discord.TokenEnv = "TOKEN"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "db"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "db/ticketyard.db"
	}
	if c.Store.MySQL.Host == "" {
		c.Store.MySQL.Host = "127.0.0.1"
	}
	if c.Store.MySQL.Port == 0 {
		c.Store.MySQL.Port = 3306
	}
	if c.Store.MySQL.User == "" {
		c.Store.MySQL.User = "root"
	}
	if c.Store.MySQL.Database == "" {
		c.Store.MySQL.Database = "ticketyard"
	}
	if c.Reconcile.ThrottleMs == nil {
		ms := defaultThrottleMs
		c.Reconcile.ThrottleMs = &ms
	}
	if c.Tickets.HelpTTLSec == 0 {
		c.Tickets.HelpTTLSec = 20
	}
	if c.Tickets.AckTTLSec == 0 {
		c.Tickets.AckTTLSec = 15
	}
	if c.Tickets.FormLabel == "" {
		c.Tickets.FormLabel = "Submit"
	}
	if c.Members.CounterCron == "" {
		c.Members.CounterCron = "*/10 * * * *"
	}
	if c.Members.CounterFormat == "" {
		c.Members.CounterFormat = "Members: %d"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.GuildID == "" {
		errs = append(errs, "guild_id is required")
	}
	if c.Channels.Notifications == "" {
		errs = append(errs, "channels.notifications is required")
	}
	if c.Channels.TicketForms == "" {
		errs = append(errs, "channels.ticket_forms is required")
	}
	switch c.Store.Backend {
	case BackendFile, BackendSQLite, BackendMySQL:
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q is not one of file, sqlite, mysql", c.Store.Backend))
	}
	if c.Reconcile.ThrottleMs != nil && *c.Reconcile.ThrottleMs < 0 {
		errs = append(errs, "reconcile.throttle_ms must not be negative")
	}
	if c.Tickets.HelpTTLSec < 0 || c.Tickets.AckTTLSec < 0 {
		errs = append(errs, "tickets ttl values must not be negative")
	}
	if c.Status.Port < 0 || c.Status.Port > 65535 {
		errs = append(errs, fmt.Sprintf("status.port %d out of range", c.Status.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ReconcileThrottle returns the delay between reconciliation re-binds.
func (c *Config) ReconcileThrottle() time.Duration {
	ms := defaultThrottleMs
	if c.Reconcile.ThrottleMs != nil {
		ms = *c.Reconcile.ThrottleMs
	}
	return time.Duration(ms) * time.Millisecond
}

// HelpTTL returns how long a call-for-help broadcast stays visible.
func (c *Config) HelpTTL() time.Duration {
	return time.Duration(c.Tickets.HelpTTLSec) * time.Second
}

// AckTTL returns how long the ticket-created acknowledgement stays visible.
func (c *Config) AckTTL() time.Duration {
	return time.Duration(c.Tickets.AckTTLSec) * time.Second
}

// Token resolves the bot token from the configured environment variable.
func (c *Config) Token() (string, error) {
	tok := strings.TrimSpace(os.Getenv(c.Discord.TokenEnv))
	if tok == "" {
		return "", fmt.Errorf("config: environment variable %s is empty", c.Discord.TokenEnv)
	}
	return tok, nil
}
