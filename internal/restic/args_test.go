package restic_test

import (
	"testing"

	"github.com/flemzord/resticd/internal/restic"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	t.Parallel()

	t.Run("verb flags values order", func(t *testing.T) {
		args := restic.NewArgs("backup").
			Value("/home").
			Flag("verbose").
			FlagValue("exclude", "*.tmp").
			Value("/etc")
		require.Equal(t,
			[]string{"backup", "--verbose", "--exclude", "*.tmp", "/home", "/etc"},
			args.Build(),
		)
	})

	t.Run("flags are deduplicated in first insertion order", func(t *testing.T) {
		args := restic.NewArgs("forget").
			Flag("prune").
			FlagValue("keep-last", 3).
			Flag("prune").
			FlagValue("keep-last", 3).
			FlagValue("keep-last", 4).
			Flag("dry-run")
		require.Equal(t,
			[]string{"forget", "--prune", "--keep-last", "3", "--keep-last", "4", "--dry-run"},
			args.Build(),
		)
	})

	t.Run("a flag and a flag with value are distinct", func(t *testing.T) {
		args := restic.NewArgs("x").Flag("tag").FlagValue("tag", "a")
		require.Equal(t, []string{"x", "--tag", "--tag", "a"}, args.Build())
	})

	t.Run("values are kept verbatim and not deduplicated", func(t *testing.T) {
		args := restic.NewArgs("cat").Values("lock", "lock").Value(42)
		require.Equal(t, []string{"cat", "lock", "lock", "42"}, args.Build())
	})

	t.Run("no verb", func(t *testing.T) {
		args := restic.NewArgs("").Flag("json").Value("x")
		require.Equal(t, []string{"--json", "x"}, args.Build())
	})

	t.Run("build does not mutate", func(t *testing.T) {
		args := restic.NewArgs("init").Flag("json")
		first := args.Build()
		first[0] = "changed"
		require.Equal(t, []string{"init", "--json"}, args.Build())
	})

	t.Run("clone is independent", func(t *testing.T) {
		args := restic.NewArgs("backup").Flag("verbose")
		clone := args.Clone().Flag("json").Flag("verbose")
		require.Equal(t, []string{"backup", "--verbose"}, args.Build())
		require.Equal(t, []string{"backup", "--verbose", "--json"}, clone.Build())
	})

	t.Run("value formatting", func(t *testing.T) {
		args := restic.NewArgs("x").
			FlagValue("int", 7).
			FlagValue("float", 1.5).
			FlagValue("bool", true)
		require.Equal(t, []string{"x", "--int", "7", "--float", "1.5", "--bool", "true"}, args.Build())
	})
}

func TestAddFlags(t *testing.T) {
	t.Parallel()

	args := restic.NewArgs("backup")
	restic.AddFlags(args, []string{"--exclude=/tmp", "no-scan", " ", "-q", "no-scan"})
	require.Equal(t, []string{"backup", "--exclude=/tmp", "--no-scan", "--q"}, args.Build())
}
