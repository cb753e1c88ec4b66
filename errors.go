package meshnode

import (
	"fmt"
	"time"
)

// ConfigurationError reports a missing or invalid configuration value.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	if e.Field != "" {
		return "config " + e.Field + ": " + msg
	}
	return "config: " + msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IdentityError reports a failure to read hardware identifiers or persist the
// node identity. It is never retried and no fallback identity is produced.
type IdentityError struct {
	Op  string
	Err error
}

func (e *IdentityError) Error() string {
	return "identity " + e.Op + ": " + e.Err.Error()
}

func (e *IdentityError) Unwrap() error { return e.Err }

// ReadinessTimeoutError reports that a bounded readiness wait expired.
// Waits are unbounded unless a timeout is configured.
type ReadinessTimeoutError struct {
	Gate    string
	Timeout time.Duration
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("%s not ready after %s", e.Gate, e.Timeout)
}

// StageLaunchError reports that a stage's start action failed. The whole
// sequence is aborted.
type StageLaunchError struct {
	Stage string
	Err   error
}

func (e *StageLaunchError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageLaunchError) Unwrap() error { return e.Err }

// InterfaceQueryError reports that the local interface table could not be
// read. It is distinct from the bridge simply not being up yet.
type InterfaceQueryError struct {
	Err error
}

func (e *InterfaceQueryError) Error() string {
	return "query interface table: " + e.Err.Error()
}

func (e *InterfaceQueryError) Unwrap() error { return e.Err }
