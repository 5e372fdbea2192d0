package livetiming

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"justapengu.in/livetiming/internal/timing"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
	Timing    TimingConfig    `yaml:"timing"`
	Accounts  []Account       `yaml:"accounts"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`

	// AllowedOrigins are the origins permitted to open the live websocket
	// from a browser. Empty allows same-origin requests only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxConnections caps concurrent connections, live feeds included. Zero
	// means no limit.
	MaxConnections int `yaml:"max_connections"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TimingConfig struct {
	CaptureDebounce time.Duration `yaml:"capture_debounce"`
	FeedBufferSize  int           `yaml:"feed_buffer_size"`
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Account is an operator login. PasswordHash is a bcrypt hash.
type Account struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Roles        []Role `yaml:"roles"`
}

func (a Account) HasRole(role Role) bool {
	for _, r := range a.Roles {
		// admins can do everything
		if r == role || r == RoleAdmin {
			return true
		}
	}

	return false
}

// BootstrapConfig seeds an empty store with a session and a grid.
type BootstrapConfig struct {
	Session *BootstrapSession `yaml:"session"`
	Drivers []BootstrapDriver `yaml:"drivers"`
}

type BootstrapSession struct {
	Title      string                 `yaml:"title"`
	Kind       timing.SessionKind     `yaml:"type"`
	TargetLaps int                    `yaml:"target_laps"`
	Meta       map[string]interface{} `yaml:"meta"`
}

type BootstrapDriver struct {
	Number int     `yaml:"number"`
	Name   string  `yaml:"name"`
	TeamID *string `yaml:"team_id"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr: "0.0.0.0:8772",
		},
		Store: StoreConfig{
			Path: "livetiming.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Timing: TimingConfig{
			CaptureDebounce: timing.DefaultCaptureDebounce,
		},
	}
}

// ReadConfig reads the YAML config at path over the defaults.
func ReadConfig(path string) (*Config, error) {
	conf := DefaultConfig()

	f, err := os.Open(path)

	if err != nil {
		return nil, errors.Wrapf(err, "config: could not open %s", path)
	}

	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(conf); err != nil {
		return nil, errors.Wrapf(err, "config: could not parse %s", path)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}

func (c *Config) Validate() error {
	if c.Timing.CaptureDebounce < 0 {
		return errors.Errorf("config: capture_debounce must not be negative, got %s", c.Timing.CaptureDebounce)
	}

	if c.HTTP.MaxConnections < 0 {
		return errors.Errorf("config: max_connections must not be negative, got %d", c.HTTP.MaxConnections)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "config: invalid log level")
	}

	seen := make(map[string]bool)

	for _, account := range c.Accounts {
		if account.Username == "" || account.PasswordHash == "" {
			return errors.New("config: accounts need a username and a password_hash")
		}

		if seen[account.Username] {
			return errors.Errorf("config: duplicate account %q", account.Username)
		}

		seen[account.Username] = true

		for _, role := range account.Roles {
			if role != RoleAdmin && role != RoleOperator {
				return errors.Errorf("config: account %q has unknown role %q", account.Username, role)
			}
		}
	}

	if session := c.Bootstrap.Session; session != nil {
		if session.Kind != "" && !session.Kind.IsValid() {
			return errors.Errorf("config: unknown bootstrap session type %q", session.Kind)
		}
	}

	return nil
}

// Redacted is a copy of the config safe to include in a debug bundle.
func (c Config) Redacted() Config {
	accounts := make([]Account, len(c.Accounts))

	for i, account := range c.Accounts {
		account.PasswordHash = "_redacted_"
		accounts[i] = account
	}

	c.Accounts = accounts

	return c
}
