package contacts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frandline/frandline/internal/dialog"
)

func TestDefaultDirectoryKnowsOriginalExtensions(t *testing.T) {
	d := Default()

	target, ok := d.Lookup("1102")
	require.True(t, ok)
	require.Equal(t, dialog.Target{User: "1102"}, target)

	_, ok = d.Lookup("9999")
	require.False(t, ok)
}

func TestNewDirectoryFromExplicitMapping(t *testing.T) {
	d := New(map[string]string{"411": "directory-assistance"})

	target, ok := d.Lookup("411")
	require.True(t, ok)
	require.Equal(t, "directory-assistance", target.User)
}
