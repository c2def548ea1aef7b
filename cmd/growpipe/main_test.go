package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacoelho/growpipe/config"
)

func run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestPumpCopiesInput(t *testing.T) {
	input := strings.Repeat("growpipe ", 1000)

	stdout, stderr, err := run(t, input, "pump", "--initial-capacity", "16", "--log-format", "json")
	require.NoError(t, err)
	assert.Equal(t, input, stdout)

	var entry map[string]any
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	assert.Equal(t, "pump finished", entry["msg"])
	assert.Equal(t, float64(len(input)), entry["written"])
	assert.Equal(t, float64(len(input)), entry["read"])
}

func TestPumpOutOfMemory(t *testing.T) {
	_, _, err := run(t, "abcdef", "pump", "--initial-capacity", "2", "--max-capacity", "4")
	assert.Error(t, err)
}

func TestRejectsBadFlags(t *testing.T) {
	_, _, err := run(t, "", "pump", "--log-format", "xml")
	assert.Error(t, err)

	_, _, err = run(t, "", "pump", "--initial-capacity", "0")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "growpipe.yml")
	require.NoError(t, os.WriteFile(filename, []byte("pipe:\n  initialCapacity: 4\nlog:\n  level: warn\n"), 0o600))

	stdout, stderr, err := run(t, "from config", "pump", "--config", filename)
	require.NoError(t, err)
	assert.Equal(t, "from config", stdout)
	assert.NotContains(t, stderr, "pump finished", "info suppressed at warn level")
}

func TestVersion(t *testing.T) {
	stdout, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "growpipe dev\n", stdout)
}

func TestVersionNotOnStderr(t *testing.T) {
	var errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs([]string{"version"})
	cmd.SetErr(&errOut)
	require.NoError(t, cmd.Execute())
	assert.Empty(t, errOut.String())
}

func TestListenRetriesUntilAddressFree(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := busy.Addr().String()
	time.AfterFunc(50*time.Millisecond, func() { busy.Close() })

	logger, hook := nullLog.NewNullLogger()
	ln, err := listen(context.Background(), addr,
		backoff.WithMaxRetries(backoff.NewConstantBackOff(20*time.Millisecond), 100), logger)
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, addr, ln.Addr().String())
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, "listen failed, retrying", hook.AllEntries()[0].Message)
}

func TestListenGivesUp(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	logger, hook := nullLog.NewNullLogger()
	_, err = listen(context.Background(), busy.Addr().String(),
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2), logger)
	assert.Error(t, err)
	assert.Len(t, hook.AllEntries(), 2)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	for _, format := range []string{"text", "json", "mozlog"} {
		logger, err := newLogger(config.LogConfig{Format: format, Level: "debug"}, &buf)
		require.NoError(t, err, format)
		assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	}

	_, err := newLogger(config.LogConfig{Format: "text", Level: "loud"}, &buf)
	assert.Error(t, err)
}

func TestCheckOrigin(t *testing.T) {
	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://pipes.local/pipes/a/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.Nil(t, checkOrigin(nil), "gorilla same-origin default")

	check := checkOrigin([]string{"http://localhost:3000"})
	assert.True(t, check(request("http://localhost:3000")))
	assert.True(t, check(request("")), "non-browser clients send no origin")
	assert.False(t, check(request("http://evil.example")))

	assert.True(t, checkOrigin([]string{"*"})(request("http://evil.example")))
}
