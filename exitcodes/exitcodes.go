// Package exitcodes defines the standard exit codes used by crucible.
package exitcodes

// Exit code constants used by crucible:
//
//   - Success (0): all executed tests were successful (or aborted/skipped)
//   - TestFailure (1): one or more tests failed
//   - RuntimeErr (2): runtime errors such as a bad catalog, a malformed
//     selector, or a panic
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
