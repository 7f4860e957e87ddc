// Package testing is blank-imported by test packages so that binaries and
// config loaders behave as if run under CAMPUSFLOW_TEST_MODE.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

// Defaults are applied only where the variable is unset.
var Defaults = map[string]string{
	"APP_STORE":        "memory",
	"APP_AUTO_MIGRATE": "false",
	"SESSION_SECRET":   "test-session-secret",
	"LOG_FORMAT":       "json",
}

var once sync.Once

func apply() {
	once.Do(func() {
		_ = os.Setenv("CAMPUSFLOW_TEST_MODE", "1")
		for key, value := range Defaults {
			if _, ok := os.LookupEnv(key); !ok {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	apply()
}

// TestMain can be delegated to from a package's own TestMain.
func TestMain(m *stdtesting.M) {
	apply()
	os.Exit(m.Run())
}
