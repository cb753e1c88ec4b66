//go:build !unix

package platform

import (
	"context"
	"errors"
)

// ExecDelegator is unavailable on this platform.
type ExecDelegator struct {
	Command []string
}

func (ExecDelegator) Delegate(context.Context) error {
	return errors.New("legacy delegation is only supported on unix")
}
