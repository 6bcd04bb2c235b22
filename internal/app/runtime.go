package app

import (
	"os"
	"strconv"
	"strings"
)

// TestModeEnv disables startup side effects when set to a true value. The
// testing guard package sets it for every test binary that imports it.
const TestModeEnv = "RVGRAFICA_TEST_MODE"

// InTestMode reports whether the binaries must return before dialing
// Postgres or Redis. Any spelling strconv.ParseBool accepts counts.
func InTestMode() bool {
	return truthy(os.Getenv(TestModeEnv))
}

func truthy(raw string) bool {
	on, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && on
}
