// Package guard switches the process into test mode when imported, so
// binaries exercised from tests never dial Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

// EnvVar matches app.TestModeEnv.
const EnvVar = "RVGRAFICA_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvVar) == "" {
			_ = os.Setenv(EnvVar, "1")
		}
	})
}
