// internal/status/constants.go
package status

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state, before the first tick.
const HealthUnknown uint16 = 0

// HealthOK means polls are completing without field errors.
const HealthOK uint16 = 1

// HealthError means field reads failed since the last tick.
const HealthError uint16 = 2

// HealthStale means no poll completed since the last tick while polling was not paused.
const HealthStale uint16 = 3

// HealthDisabled means a loop has stopped: the bridge is shutting down.
const HealthDisabled uint16 = 4

// ---- LIMITS ----

// MaxSecondsInError is where SecondsInError saturates. It must not wrap.
const MaxSecondsInError = 65535

// ---- ERROR CODES ----

// ErrorCodeNone is reported while healthy.
const ErrorCodeNone uint16 = 0

// ErrorCodeFieldRead is reported after failed telemetry field reads.
const ErrorCodeFieldRead uint16 = 1

// ErrorCodeCommand is reported after failed device commands.
const ErrorCodeCommand uint16 = 2

// HealthName returns the text form of a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	case HealthDisabled:
		return "disabled"
	}
	return "invalid"
}
