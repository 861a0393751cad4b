// Package syncconfig loads device settings and credentials. Settings come
// from ~/.config/rollcall/config.json, overridden by ROLLCALL_* environment
// variables (a .env file in the working directory is loaded into the
// environment first). Credentials live in auth.json next to it.
package syncconfig

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ROLLCALL"

const (
	configFileName = "config.json"
	authFileName   = "auth.json"
)

const defaultServerURL = "http://localhost:8080"

// defaults doubles as the list of known keys and their types.
var defaults = map[string]any{
	"server_url":                  defaultServerURL,
	"data_dir":                    "",
	"sync.batch_size":             50,
	"sync.max_attempts":           10,
	"sync.interval":               24 * time.Hour,
	"sync.timeout":                15 * time.Second,
	"sync.on_start":               true,
	"sync.retention":              7 * 24 * time.Hour,
	"connectivity.probe_interval": 10 * time.Second,
	"connectivity.hold_down":      5 * time.Second,
	"roster.timeout":              10 * time.Second,
	"log_level":                   "warn",
	"log_format":                  "text",
	"metrics_addr":                "",
}

// SyncSettings tunes the reconciler and scheduler.
type SyncSettings struct {
	BatchSize   int
	MaxAttempts int
	Interval    time.Duration
	Timeout     time.Duration
	OnStart     bool
	Retention   time.Duration
}

// ConnectivitySettings tunes the reachability probe.
type ConnectivitySettings struct {
	ProbeInterval time.Duration
	HoldDown      time.Duration
}

// Config is the effective device configuration.
type Config struct {
	Path          string // file the settings were read from
	ServerURL     string
	DataDir       string
	Sync          SyncSettings
	Connectivity  ConnectivitySettings
	RosterTimeout time.Duration
	LogLevel      string
	LogFormat     string
	MetricsAddr   string
}

// AuthCredentials is the device login stored in auth.json (0600).
type AuthCredentials struct {
	Token     string `json:"token"`
	TeacherID string `json:"teacher_id"`
	DeviceID  string `json:"device_id"`
	ServerURL string `json:"server_url,omitempty"`
}

// ConfigDir returns ~/.config/rollcall, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "rollcall")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// DefaultPath is the config file used when none is given.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadDotEnv loads .env from dir into the process environment if present.
// Variables already set win.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// newViper reads path (or the default file) with defaults and environment
// overrides applied. A missing file is not an error.
func newViper(path string) (*viper.Viper, string, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("read config %s: %w", path, err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, path, nil
}

// Load returns the effective configuration.
func Load(path string) (*Config, error) {
	v, path, err := newViper(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Path:      path,
		ServerURL: strings.TrimRight(v.GetString("server_url"), "/"),
		DataDir:   v.GetString("data_dir"),
		Sync: SyncSettings{
			BatchSize:   v.GetInt("sync.batch_size"),
			MaxAttempts: v.GetInt("sync.max_attempts"),
			Interval:    v.GetDuration("sync.interval"),
			Timeout:     v.GetDuration("sync.timeout"),
			OnStart:     v.GetBool("sync.on_start"),
			Retention:   v.GetDuration("sync.retention"),
		},
		Connectivity: ConnectivitySettings{
			ProbeInterval: v.GetDuration("connectivity.probe_interval"),
			HoldDown:      v.GetDuration("connectivity.hold_down"),
		},
		RosterTimeout: v.GetDuration("roster.timeout"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
		MetricsAddr:   v.GetString("metrics_addr"),
	}
	if cfg.DataDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = filepath.Join(dir, "data")
	}
	if cfg.Sync.BatchSize <= 0 {
		return nil, fmt.Errorf("sync.batch_size must be positive, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.MaxAttempts <= 0 {
		return nil, fmt.Errorf("sync.max_attempts must be positive, got %d", cfg.Sync.MaxAttempts)
	}
	return cfg, nil
}

// Keys lists every known setting in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get returns the effective value of key.
func Get(path, key string) (any, error) {
	if _, ok := defaults[key]; !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	v, _, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return v.Get(key), nil
}

// List returns the effective value of every known key.
func List(path string) (map[string]any, error) {
	v, _, err := newViper(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(defaults))
	for key := range defaults {
		out[key] = v.Get(key)
	}
	return out, nil
}

// Set parses value according to key's type and writes it to the config
// file. Only keys present in the file (plus this one) are written.
func Set(path, key, value string) error {
	def, ok := defaults[key]
	if !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	typed, err := parseValue(def, value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	if path == "" {
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	v.Set(key, typed)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func parseValue(def any, value string) (any, error) {
	switch def.(type) {
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("expected an integer, got %q", value)
		}
		return n, nil
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", value)
		}
		return b, nil
	case time.Duration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("expected a duration like 30s or 24h, got %q", value)
		}
		return d.String(), nil
	default:
		return value, nil
	}
}

// LoadAuth reads auth.json, returning nil if it does not exist.
func LoadAuth() (*AuthCredentials, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, authFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", authFileName, err)
	}
	return &creds, nil
}

// SaveAuth writes auth.json with 0600 permissions.
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, authFileName), data, 0600)
}

// ClearAuth removes the stored token but keeps the device id, so a later
// login reuses it.
func ClearAuth() error {
	creds, err := LoadAuth()
	if err != nil || creds == nil {
		return err
	}
	return SaveAuth(&AuthCredentials{DeviceID: creds.DeviceID})
}

// GetToken returns the bearer token.
// Priority: ROLLCALL_TOKEN env > auth.json.
func GetToken() string {
	if v := os.Getenv(EnvPrefix + "_TOKEN"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.Token
	}
	return ""
}

// EnsureDeviceID returns the device id from auth.json, generating and
// persisting one on first use. The server sees the same id for the
// device's lifetime.
func EnsureDeviceID() (string, error) {
	creds, err := LoadAuth()
	if err != nil {
		return "", err
	}
	if creds != nil && creds.DeviceID != "" {
		return creds.DeviceID, nil
	}
	id, err := GenerateDeviceID()
	if err != nil {
		return "", err
	}
	if creds == nil {
		creds = &AuthCredentials{}
	}
	creds.DeviceID = id
	if err := SaveAuth(creds); err != nil {
		return "", err
	}
	return id, nil
}

// GenerateDeviceID creates a new random device ID (16 bytes hex).
func GenerateDeviceID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
