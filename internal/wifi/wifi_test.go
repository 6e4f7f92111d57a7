package wifi

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyCommandPicksPlatformTool(t *testing.T) {
	cmd, err := applyCommand(context.Background(), "home-network", "hunter2")

	switch runtime.GOOS {
	case "linux":
		require.NoError(t, err)
		require.Contains(t, cmd.Args, "nmcli")
		require.Contains(t, cmd.Args, "home-network")
	case "darwin":
		require.NoError(t, err)
		require.Contains(t, cmd.Args, "networksetup")
		require.Contains(t, cmd.Args, "home-network")
	default:
		require.ErrorIs(t, err, ErrUnsupportedPlatform)
	}
}
