package app

import (
	"os"
	"sync"
)

const testModeEnv = "PROPDESK_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the process runs under the test harness, which
// sets PROPDESK_TEST_MODE so the binaries skip their runtime startup.
func InTestMode() bool {
	return testMode()
}
