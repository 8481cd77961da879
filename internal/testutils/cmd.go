package testutils

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FlagTestCase describes a cobra flag expected on a command.
type FlagTestCase struct {
	Name           string
	Short          string
	Default        string
	PersistentFlag bool
	Dirname        bool
}

// AssertFlag asserts that cmd declares the flag described by tc.
func AssertFlag(t *testing.T, cmd *cobra.Command, tc FlagTestCase) {
	t.Helper()

	var flag *pflag.Flag
	if tc.PersistentFlag {
		flag = cmd.PersistentFlags().Lookup(tc.Name)
	} else {
		flag = cmd.Flags().Lookup(tc.Name)
	}
	require.NotNil(t, flag, "Flag %q should be declared", tc.Name)
	assert.Equal(t, tc.Short, flag.Shorthand, "Flag %q shorthand", tc.Name)
	assert.Equal(t, tc.Default, flag.DefValue, "Flag %q default value", tc.Name)

	if tc.Dirname {
		assert.Equal(t, []string{}, flag.Annotations[cobra.BashCompSubdirsInDir], "Flag %q should complete directories", tc.Name)
	} else {
		assert.Nil(t, flag.Annotations[cobra.BashCompSubdirsInDir], "Flag %q should not complete directories", tc.Name)
	}
}
