package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datafoundry/shareflow/cmd"
)

// execRootCommand executes the shareflow root command with the given
// arguments and returns its output.
func execRootCommand(t *testing.T, args ...string) string {
	t.Helper()

	buf := &bytes.Buffer{}
	rc := cmd.NewRootCommand(os.Stdin, buf, buf)
	rc.SetArgs(args)
	require.NoError(t, rc.Execute())
	return buf.String()
}

func TestRootCommand(t *testing.T) {
	out := execRootCommand(t, "--help")
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "Available Commands:")
	assert.Contains(t, out, "server")
}

func TestServerHelp(t *testing.T) {
	out := execRootCommand(t, "server", "--help")
	assert.Contains(t, out, "--storage-method")
	assert.Contains(t, out, "--queue.kafka.brokers")
	assert.Contains(t, out, "--expiration.interval")
}

func TestConfigFileRejectsUnknownOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("no-such-option = true\n"), 0600))

	buf := &bytes.Buffer{}
	rc := cmd.NewRootCommand(os.Stdin, buf, buf)
	rc.SetArgs([]string{"server", "-c", path})
	err := rc.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid option"))
}
