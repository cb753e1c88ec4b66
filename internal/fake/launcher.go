package fake

import (
	"context"
	"sync"

	"meshnode/node/stage"
)

var _ stage.Launcher = (*Launcher)(nil)

// Launcher records launches instead of starting processes.
type Launcher struct {
	*CallRecorder

	mu      sync.Mutex
	nextPID int
	errs    map[string]error
	// OnLaunch runs before the launch is recorded, e.g. to create the
	// marker the stage would produce.
	OnLaunch func(s stage.Stage)
}

// NewLauncher creates a Launcher recording into rec. A nil rec gets a
// private recorder.
func NewLauncher(rec *CallRecorder) *Launcher {
	if rec == nil {
		rec = &CallRecorder{}
	}
	return &Launcher{CallRecorder: rec, nextPID: 100, errs: make(map[string]error)}
}

// FailOn makes launching the named stage return err.
func (l *Launcher) FailOn(name string, err error) {
	l.mu.Lock()
	l.errs[name] = err
	l.mu.Unlock()
}

func (l *Launcher) Launch(_ context.Context, s stage.Stage) (stage.LaunchResult, error) {
	if l.OnLaunch != nil {
		l.OnLaunch(s)
	}
	l.record("Launch", s.Name, s)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.errs[s.Name]; err != nil {
		return stage.LaunchResult{}, err
	}
	l.nextPID++
	return stage.LaunchResult{PID: l.nextPID}, nil
}

// Launched returns the names of launched stages in order, failed launches
// included.
func (l *Launcher) Launched() []string {
	calls := l.Calls("Launch")
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Args[0].(string)
	}
	return out
}

// Stage returns the stage passed to the i-th launch.
func (l *Launcher) Stage(i int) stage.Stage {
	return l.Calls("Launch")[i].Args[1].(stage.Stage)
}
