package livetiming

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"justapengu.in/livetiming/internal/timing"
)

func writeConfig(t *testing.T, data string) string {
	path := filepath.Join(t.TempDir(), "config.yml")

	if err := ioutil.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestReadConfig(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: 127.0.0.1:9000
  allowed_origins:
    - https://timing.example.com
store:
  path: /var/lib/livetiming/live.db
timing:
  capture_debounce: 2s
accounts:
  - username: race-director
    password_hash: $2a$10$abcdefghijklmnopqrstuv
    roles: [admin]
bootstrap:
  session:
    title: Club Sprint
    type: Quali
    target_laps: 12
  drivers:
    - number: 7
      name: Kimi
`)

	conf, err := ReadConfig(path)

	if err != nil {
		t.Fatal(err)
	}

	if conf.HTTP.Addr != "127.0.0.1:9000" || conf.Store.Path != "/var/lib/livetiming/live.db" || conf.Timing.CaptureDebounce != 2*time.Second {
		t.Errorf("Unexpected config: %s", spew.Sdump(conf))
	}

	// unset values keep their defaults
	if conf.Log.Level != "info" {
		t.Errorf("Expected the default log level, got: %s", conf.Log.Level)
	}

	if conf.Bootstrap.Session == nil || conf.Bootstrap.Session.Kind != timing.SessionKindQualifying || len(conf.Bootstrap.Drivers) != 1 {
		t.Errorf("Unexpected bootstrap config: %s", spew.Sdump(conf.Bootstrap))
	}

	if len(conf.Accounts) != 1 || !conf.Accounts[0].HasRole(RoleOperator) {
		t.Errorf("Expected an admin to have every role: %s", spew.Sdump(conf.Accounts))
	}

	redacted := conf.Redacted()

	if redacted.Accounts[0].PasswordHash != "_redacted_" || conf.Accounts[0].PasswordHash == "_redacted_" {
		t.Error("Expected Redacted to copy the accounts before redacting them")
	}
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name   string
		config string
		errStr string
	}{
		{"negative debounce", "timing:\n  capture_debounce: -1s\n", "capture_debounce"},
		{"bad log level", "log:\n  level: loud\n", "log level"},
		{"account without hash", "accounts:\n  - username: a\n", "password_hash"},
		{"duplicate account", "accounts:\n  - {username: a, password_hash: x}\n  - {username: a, password_hash: y}\n", "duplicate"},
		{"unknown role", "accounts:\n  - {username: a, password_hash: x, roles: [marshal]}\n", "unknown role"},
		{"unknown session type", "bootstrap:\n  session:\n    type: Endurance\n", "session type"},
		{"not yaml", "http: [", "could not parse"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadConfig(writeConfig(t, tc.config))

			if err == nil || !strings.Contains(err.Error(), tc.errStr) {
				t.Errorf("Expected an error containing %q, got: %v", tc.errStr, err)
			}
		})
	}

	if _, err := ReadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected an error for a missing config")
	}
}
