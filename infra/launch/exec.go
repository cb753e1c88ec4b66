// Package launch starts stage processes on the host.
package launch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"meshnode/node/stage"
)

var _ stage.Launcher = (*Exec)(nil)

// ExitFunc observes a launched process exiting.
type ExitFunc func(s stage.Stage, pid int, err error)

// Exec launches each stage as a child process and returns once it has
// started. Children are reaped in the background; an exit is only logged.
type Exec struct {
	env    []string
	stdout io.Writer
	stderr io.Writer
	onExit ExitFunc
}

// Option configures an Exec launcher.
type Option func(*Exec)

// WithEnv sets the base environment of every child. Defaults to the
// orchestrator's environment.
func WithEnv(env []string) Option {
	return func(e *Exec) { e.env = env }
}

// WithOutput sets where child output goes. Defaults to the orchestrator's
// stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Exec) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithExitFunc registers a callback run after a child has been reaped.
func WithExitFunc(fn ExitFunc) Option {
	return func(e *Exec) { e.onExit = fn }
}

// NewExec creates an Exec launcher.
func NewExec(opts ...Option) *Exec {
	e := &Exec{
		env:    os.Environ(),
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Launch starts the stage binary. The child is not bound to ctx: services
// outlive the launch call and are never stopped by the orchestrator.
func (e *Exec) Launch(ctx context.Context, s stage.Stage) (stage.LaunchResult, error) {
	if err := ctx.Err(); err != nil {
		return stage.LaunchResult{}, err
	}
	path, err := exec.LookPath(s.Binary)
	if err != nil {
		return stage.LaunchResult{}, fmt.Errorf("find %s: %w", s.Binary, err)
	}

	cmd := exec.Command(path, s.Args...)
	cmd.Env = append(append([]string(nil), e.env...), s.Env...)
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr

	if err := cmd.Start(); err != nil {
		return stage.LaunchResult{}, fmt.Errorf("start %s: %w", path, err)
	}

	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		if err != nil {
			slog.Warn("Stage process exited.", "stage", s.Name, "pid", pid, "err", err)
		} else {
			slog.Debug("Stage process exited.", "stage", s.Name, "pid", pid)
		}
		if e.onExit != nil {
			e.onExit(s, pid, err)
		}
	}()

	return stage.LaunchResult{PID: pid}, nil
}
