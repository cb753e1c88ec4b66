package platform

import (
	"log/slog"

	systemd "github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells systemd that the boot has reached idle. It is a no-op
// when not running under a notify-type unit.
func NotifyReady() {
	sent, err := systemd.SdNotify(false, systemd.SdNotifyReady)
	if err != nil {
		slog.Error("Failed to notify systemd that the node is ready.", "err", err)
		return
	}
	if sent {
		slog.Debug("Notified systemd that the node is ready.")
	}
}
