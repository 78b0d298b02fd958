package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, format string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := ApplyConfig(&Config{Level: "debug", Format: format}, &buf)
	require.NoError(t, err)
	return logger, &buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"", InfoLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	_, err := ApplyConfig(&Config{Level: "info", Format: "xml"}, nil)
	assert.Error(t, err)
}

func TestJSONOutputCarriesFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "json")

	logger.WithComponent("launcher").Info("network ensured", Str("network", "hoist"), Int("created", 1))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "network ensured", decoded["message"])
	assert.Equal(t, "INFO", decoded["level"])
	assert.Equal(t, "launcher", decoded["component"])
	assert.Equal(t, "hoist", decoded["network"])
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(t, "text")
	logger.SetLevel(WarnLevel)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestRedactionMasksSecrets(t *testing.T) {
	logger, buf := newBufferLogger(t, "text")

	logger.Info("credentials ready",
		Str("password", "hunter2hunter2xx"),
		Str("admin_password_file", "/srv/portainer/admin_password.txt"),
		Str("hash", "$2y$10$abc"),
		Str("method", "bcrypt"))

	out := buf.String()
	assert.NotContains(t, out, "hunter2hunter2xx")
	assert.NotContains(t, out, "$2y$10$abc")
	assert.Contains(t, out, "method=bcrypt")
	assert.Equal(t, 3, strings.Count(out, redacted))
}

func TestWithErrorAndChildIsolation(t *testing.T) {
	logger, buf := newBufferLogger(t, "text")
	child := logger.WithError(errors.New("boom"))

	logger.Info("parent")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "boom")
	assert.Contains(t, lines[1], "error=boom")
}

func TestTestLoggerSharesEntriesWithChildren(t *testing.T) {
	logger := NewTestLogger()
	logger.WithComponent("credentials").Warn("degraded hash in use", Str("method", "placeholder"))

	assert.True(t, logger.AssertLogged(WarnLevel, "degraded"))
	assert.True(t, logger.AssertLoggedWithField(WarnLevel, "degraded", "component", "credentials"))
}
