package restic_test

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/flemzord/resticd/internal/restic"
	"github.com/stretchr/testify/require"
)

// fakeRestic writes script to an executable file and returns a client
// that runs it in place of restic.
func fakeRestic(t *testing.T, script string) *restic.Client {
	t.Helper()
	return fakeResticWith(t, script, restic.Config{})
}

func fakeResticWith(t *testing.T, script string, cfg restic.Config) *restic.Client {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipped, shell scripts are not executable on windows")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	path := filepath.Join(t.TempDir(), "restic")
	require.NoError(t, os.WriteFile(path, []byte("#!"+sh+"\n"+script+"\n"), 0o755))

	cfg.Binary = path
	cfg.Logger = slog.New(slog.DiscardHandler)
	return restic.New(cfg)
}
