//go:build unix

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// ExecDelegator hands the boot to the legacy entrypoint by replacing the
// process image. Delegate only returns on failure.
type ExecDelegator struct {
	Command []string
}

func (d ExecDelegator) Delegate(ctx context.Context) error {
	if len(d.Command) == 0 {
		return errors.New("legacy command is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := exec.LookPath(d.Command[0])
	if err != nil {
		return fmt.Errorf("find legacy entrypoint: %w", err)
	}

	slog.Info("Delegating to legacy entrypoint.", "command", d.Command)
	if err := unix.Exec(path, d.Command, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}
