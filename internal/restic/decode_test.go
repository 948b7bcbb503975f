package restic_test

import (
	"testing"

	"github.com/flemzord/resticd/internal/restic"
	"github.com/stretchr/testify/require"
)

const summaryLine = `{"message_type":"summary","files_new":2,"files_changed":0,"files_unmodified":0,` +
	`"dirs_new":1,"dirs_changed":0,"dirs_unmodified":0,"data_blobs":2,"tree_blobs":1,` +
	`"data_added":1024,"data_added_packed":900,"total_files_processed":2,"total_bytes_processed":1024,` +
	`"backup_start":"2024-05-01T10:00:00Z","backup_end":"2024-05-01T10:00:02Z",` +
	`"total_duration":2.1,"snapshot_id":"4f8c7bd3b1e0a7c25d1e3e7b5a1bc2f0b0b6a3f2c1d4e5f60718293a4b5c6d7e"}`

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("summary", func(t *testing.T) {
		msg, err := restic.Decode(summaryLine, restic.BackupVariants)
		require.NoError(t, err)
		summary, ok := msg.(*restic.Summary)
		require.True(t, ok)
		require.EqualValues(t, 2, summary.FilesNew)
		require.EqualValues(t, 1024, summary.DataAdded)
		require.Equal(t, 2024, summary.BackupStart.Year())
		require.NotEmpty(t, summary.SnapshotID)
	})

	t.Run("status", func(t *testing.T) {
		msg, err := restic.Decode(`{"message_type":"status","percent_done":0.5,"current_files":["/a","/b"]}`, restic.BackupVariants)
		require.NoError(t, err)
		status := msg.(*restic.Status)
		require.InDelta(t, 0.5, status.PercentDone, 0.0001)
		require.Equal(t, []string{"/a", "/b"}, status.CurrentFiles)
	})

	t.Run("backup error", func(t *testing.T) {
		msg, err := restic.Decode(`{"message_type":"error","error":{"message":"permission denied"},"during":"archival","item":"/root"}`, restic.BackupVariants)
		require.NoError(t, err)
		be := msg.(*restic.BackupError)
		require.Equal(t, "permission denied", be.Error.Message)
		require.Equal(t, "archival", be.During)
		require.Equal(t, "/root", be.Item)
	})

	t.Run("exit error is in every set", func(t *testing.T) {
		line := `{"message_type":"exit_error","code":1,"message":"An error occurred"}`
		for _, set := range []restic.Variants{restic.BackupVariants, restic.InitVariants, restic.VersionVariants} {
			msg, err := restic.Decode(line, set)
			require.NoError(t, err)
			exit := msg.(*restic.ExitMessage)
			require.Equal(t, 1, exit.Code)
			require.Equal(t, "An error occurred", exit.Message)
		}
	})

	t.Run("tag outside the set is a decode failure", func(t *testing.T) {
		_, err := restic.Decode(summaryLine, restic.VersionVariants)
		require.ErrorIs(t, err, restic.ErrUnknownMessage)

		_, err = restic.Decode(`{"message_type":"something_new"}`, restic.BackupVariants)
		require.ErrorIs(t, err, restic.ErrUnknownMessage)

		_, err = restic.Decode(`{"percent_done":1}`, restic.BackupVariants)
		require.ErrorIs(t, err, restic.ErrUnknownMessage)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := restic.Decode(`{"message_type":"status",`, restic.BackupVariants)
		require.ErrorIs(t, err, restic.ErrMalformedMessage)

		_, err = restic.Decode(`{"message_type":"status","percent_done":"half"}`, restic.BackupVariants)
		require.ErrorIs(t, err, restic.ErrMalformedMessage)
	})
}

func TestExecJSON_SkipsUndecodableLines(t *testing.T) {
	t.Parallel()

	client := fakeRestic(t, `
echo ""
echo "repository 1234 opened"
echo '{"message_type":"version","version":"0.17.0","go_version":"go1.22","go_os":"linux","go_arch":"amd64"}'
echo '{"message_type":"summary"}'
echo '{not json'
echo '{"message_type":"version","version":"0.17.1"}' >&2
`)

	var got []restic.Message
	err := client.ExecJSON(t.Context(), restic.NewArgs("version"), restic.VersionVariants, func(m restic.Message) {
		got = append(got, m)
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Streams interleave arbitrarily.
	var versions []string
	for _, m := range got {
		versions = append(versions, m.(*restic.Version).Version)
	}
	require.ElementsMatch(t, []string{"0.17.0", "0.17.1"}, versions)
}

func TestExecJSON_AppendsJSONFlag(t *testing.T) {
	t.Parallel()

	client := fakeRestic(t, `echo "$@" >&2; test "$2" = "--json" || exit 1`)
	err := client.ExecJSON(t.Context(), restic.NewArgs("version"), restic.VersionVariants, nil)
	require.NoError(t, err)
}

func TestExecJSON_AttachesExitMessage(t *testing.T) {
	t.Parallel()

	client := fakeRestic(t, `
echo '{"message_type":"exit_error","code":12,"message":"wrong password or no key found"}' >&2
exit 12
`)
	err := client.ExecJSON(t.Context(), restic.NewArgs("cat").Value("config"), restic.NewVariants(), nil)
	require.ErrorIs(t, err, restic.ErrWrongPassword)

	var exitErr *restic.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 12, exitErr.Code)
	require.Equal(t, "wrong password or no key found", exitErr.Message)
}
