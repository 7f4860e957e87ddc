package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv, when true, tells binaries to skip dialling Redis and Postgres.
const TestModeEnv = "CAMPUSFLOW_TEST_MODE"

var (
	testModeMu  sync.RWMutex
	testMode    bool
	testModeSet bool
)

func readTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}

// InTestMode reports whether runtime side effects such as the asynq scheduler
// should be skipped. The environment is read on first use.
func InTestMode() bool {
	testModeMu.RLock()
	if testModeSet {
		defer testModeMu.RUnlock()
		return testMode
	}
	testModeMu.RUnlock()

	testModeMu.Lock()
	defer testModeMu.Unlock()
	if !testModeSet {
		testMode = readTestMode()
		testModeSet = true
	}
	return testMode
}

// RefreshTestMode re-reads the environment after it changed.
func RefreshTestMode() bool {
	testModeMu.Lock()
	defer testModeMu.Unlock()
	testMode = readTestMode()
	testModeSet = true
	return testMode
}
