package meshnode

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "config with field and cause",
			err:  &ConfigurationError{Field: "bridge", Message: "parse", Err: errors.New("bad prefix")},
			want: "config bridge: parse: bad prefix",
		},
		{
			name: "config without field",
			err:  &ConfigurationError{Err: errors.New("unreadable")},
			want: "config: unreadable",
		},
		{
			name: "identity",
			err:  &IdentityError{Op: "persist", Err: fs.ErrPermission},
			want: "identity persist: permission denied",
		},
		{
			name: "readiness timeout",
			err:  &ReadinessTimeoutError{Gate: "marker /var/run/nats.conf", Timeout: 30 * time.Second},
			want: "marker /var/run/nats.conf not ready after 30s",
		},
		{
			name: "stage launch",
			err:  &StageLaunchError{Stage: "message-bus", Err: errors.New("no such file")},
			want: `stage "message-bus": no such file`,
		},
		{
			name: "interface query",
			err:  &InterfaceQueryError{Err: errors.New("netlink closed")},
			want: "query interface table: netlink closed",
		},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("%s: Error() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestErrorsUnwrapToCause(t *testing.T) {
	t.Parallel()

	cause := fs.ErrPermission
	for _, err := range []error{
		&ConfigurationError{Field: "file", Err: cause},
		&IdentityError{Op: "persist", Err: cause},
		&StageLaunchError{Stage: "mesh", Err: cause},
		&InterfaceQueryError{Err: cause},
	} {
		wrapped := fmt.Errorf("boot: %w", err)
		if !errors.Is(wrapped, cause) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}
}
