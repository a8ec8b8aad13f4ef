package directive

import (
	"log"
)

// Applier is the subset of Agent runtime state a directive can mutate.
// Implemented by the Agent's runtime package so this package stays free of
// any dependency on HTTP clients, queues, or config.
type Applier interface {
	SetGoDark(dark bool)
	RefreshPolicy()
	SetHeartbeatIntervalSec(sec int)
	FlushStats()
}

// Apply interprets each directive against a, applying GO_DARK/RESUME/
// REFRESH_POLICY/SET_HEARTBEAT_INTERVAL/FLUSH_STATS and logging-and-ignoring
// anything outside the known set. heartbeatFloorSec clamps
// SET_HEARTBEAT_INTERVAL from below. Directive application is idempotent:
// applying the same directive twice in a row leaves state unchanged beyond
// its first application.
func Apply(directives []Directive, a Applier, heartbeatFloorSec int, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	for _, d := range directives {
		switch d.Type {
		case TypeGoDark:
			logger.Printf("directive: GO_DARK received, suppressing outbound sends")
			a.SetGoDark(true)
		case TypeResume:
			logger.Printf("directive: RESUME received")
			a.SetGoDark(false)
		case TypeRefreshPolicy:
			logger.Printf("directive: REFRESH_POLICY received")
			a.RefreshPolicy()
		case TypeSetHeartbeatInterval:
			sec, ok := intValue(d.Value)
			if !ok {
				logger.Printf("directive: invalid SET_HEARTBEAT_INTERVAL value %v", d.Value)
				continue
			}
			if sec < heartbeatFloorSec {
				sec = heartbeatFloorSec
			}
			a.SetHeartbeatIntervalSec(sec)
			logger.Printf("directive: heartbeat interval set to %ds", sec)
		case TypeFlushStats:
			a.FlushStats()
		default:
			logger.Printf("directive: ignoring unsupported type %q", d.Type)
		}
	}
}

// intValue coerces a decoded JSON directive value (float64, int, or int64)
// into an int. Any other type, including a numeric string, is rejected.
func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
