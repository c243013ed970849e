package llm

import "time"

// SetRetryDelays overrides retryDelays for the duration of a test and returns
// a restore function to be called via t.Cleanup.
func SetRetryDelays(d []time.Duration) func() {
	orig := retryDelays
	retryDelays = d
	return func() { retryDelays = orig }
}

// SetGenerateBackoff overrides the pause between generation attempts.
func SetGenerateBackoff(d time.Duration) func() {
	orig := generateBackoff
	generateBackoff = d
	return func() { generateBackoff = orig }
}
