package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "processor").With("job", "j1")

	l.Info("Image processed", "rows", 3, "dangling")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "Image processed", rec["msg"])
	require.Equal(t, "processor", rec["component"])
	require.Equal(t, "j1", rec["job"])
	require.EqualValues(t, 3, rec["rows"])
	require.NotContains(t, rec, "dangling")
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "test")

	SetLevel("warn")
	defer SetLevel("info")

	l.Info("hidden")
	require.Zero(t, buf.Len())
	l.Warn("shown")
	require.NotZero(t, buf.Len())
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Info("nothing")
}
