// Package steps holds the godog step definitions for the fleet control
// plane's acceptance suite, one file per scenario group, each owning its
// own state-holding context struct in the style the teacher's own BDD
// suite uses.
package steps

import (
	"os"
	"testing"
)

// testingT is set once by TestMain before the suite runs, so step
// definitions that need a *testing.T (for t.TempDir()-style cleanup) don't
// have to thread one through godog's untyped scenario context.
var testingT *testing.T

// SetTestingT wires the *testing.T driving the suite.
func SetTestingT(t *testing.T) {
	testingT = t
}

// tempDirForScenario returns a fresh directory cleaned up at suite exit.
func tempDirForScenario() string {
	if testingT != nil {
		return testingT.TempDir()
	}
	dir, err := os.MkdirTemp("", "mcfleet-bdd-*")
	if err != nil {
		panic(err)
	}
	return dir
}
