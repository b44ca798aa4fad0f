package eventadmin

import "time"

// Clock abstracts monotonic timing so blacklist-threshold tests can fake elapsed time
// without sleeping for real seconds. Grounded on the C implementation's injected
// CLOCK_MONOTONIC access (celix_gettime/celix_elapsedtime) — the Go engine takes the
// same dependency as an interface instead of a libc clock id.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock, backed by time.Now (monotonic on all
// platforms Go supports).
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock used when none is configured.
var SystemClock Clock = systemClock{}
