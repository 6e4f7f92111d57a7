// Package wifi applies a captured SSID/password pair to the host's
// network configuration, grounded on phone.rs's get_wifi_creds, which
// shells out to nmcli on Linux and networksetup on macOS and treats a
// nonzero exit as failure. Generalized to pick the command by
// runtime.GOOS (spec.md's original used #[cfg(target_os)] compile-time
// dispatch; a single cross-compiled Go binary decides at runtime
// instead) and to take a context so the apply can be cancelled if the
// phone gives up.
package wifi

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// ErrUnsupportedPlatform is returned by Apply on a GOOS with no known
// Wi-Fi apply command.
var ErrUnsupportedPlatform = fmt.Errorf("wifi: no Wi-Fi apply command for this platform")

// Apply connects the host to ssid using password, per spec.md §4.9's
// D.Await -> apply_wifi -> register transition.
func Apply(ctx context.Context, ssid, password string) error {
	cmd, err := applyCommand(ctx, ssid, password)
	if err != nil {
		return err
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("wifi: applying %q: %w", ssid, err)
	}
	return nil
}

func applyCommand(ctx context.Context, ssid, password string) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "linux":
		return exec.CommandContext(ctx, "nmcli",
			"--wait", "20",
			"device", "wifi", "connect", ssid,
			"password", password,
		), nil
	case "darwin":
		return exec.CommandContext(ctx, "networksetup",
			"-setairportnetwork", "en0", ssid, password,
		), nil
	default:
		return nil, ErrUnsupportedPlatform
	}
}

// HaveInternet reports whether the host currently has a route to the
// public internet, grounded on nettest.rs's do_i_have_internet: spawn
// one ICMP echo with a 1s deadline and treat success as "yes". Used at
// startup and in Disconnected.OnHook to decide whether to attempt
// registration (spec.md §4.9's Initial state and D.OnHook transition).
func HaveInternet(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", "1", "8.8.8.8")
	return cmd.Run() == nil
}
