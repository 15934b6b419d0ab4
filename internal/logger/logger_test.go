package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoggerInitialization tests that logger can be initialized with different log levels
func TestLoggerInitialization(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{name: "Valid DEBUG level", level: "DEBUG", want: logrus.DebugLevel},
		{name: "Valid INFO level", level: "INFO", want: logrus.InfoLevel},
		{name: "Valid WARN level", level: "WARN", want: logrus.WarnLevel},
		{name: "Valid ERROR level", level: "ERROR", want: logrus.ErrorLevel},
		{name: "Lower case is accepted", level: "debug", want: logrus.DebugLevel},
		{name: "Invalid level defaults to INFO", level: "INVALID", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitWithOutput(tt.level, &bytes.Buffer{})
			assert.Equal(t, tt.want, GetLogger().Level)
		})
	}
}

func TestInvalidLevelWarns(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("LOUD", &buf)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(firstLine(buf.Bytes()), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Contains(t, entry["msg"], "LOUD")
}

// TestLoggerWithFields tests that contextual fields end up in the JSON entry
func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("INFO", &buf)
	buf.Reset()

	WithFields(logrus.Fields{
		"user_id":  "12345",
		"action":   "create",
		"resource": "server",
	}).Info("created")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(firstLine(buf.Bytes()), &entry))
	assert.Equal(t, "12345", entry["user_id"])
	assert.Equal(t, "create", entry["action"])
	assert.Equal(t, "created", entry["msg"])
	assert.NotEmpty(t, entry["time"])
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("DEBUG", &buf)
	buf.Reset()

	Component("draft").Debug("enrichment scheduled")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(firstLine(buf.Bytes()), &entry))
	assert.Equal(t, "draft", entry["component"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput("ERROR", &buf)
	buf.Reset()

	Info("not shown")
	Warnf("not shown %d", 1)
	assert.Zero(t, buf.Len())

	Errorf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}
	return b
}
