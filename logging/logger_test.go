package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLoggerWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, DefaultFormat)
	l.Output = &buf

	l.Info("hello %s", "world")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello world", decoded["message"])
	assert.Equal(t, "INFO", decoded["level"])
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelError, DefaultFormat)
	l.Output = &buf

	l.Info("should not appear")
	assert.Empty(t, buf.Bytes())

	l.Error("should appear")
	assert.NotEmpty(t, buf.Bytes())
}

func TestLoggerAppendsFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, DefaultFormat)
	l.Output = &buf

	l.InfoF(map[string]interface{}{"remote_ip": "127.0.0.1"}, "accepted connection")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "127.0.0.1", decoded["remote_ip"])
}
