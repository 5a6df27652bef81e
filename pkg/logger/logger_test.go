package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithOutput("warn", "json", &buf))
	t.Cleanup(func() { log = nil })

	Infof("hidden %d", 1)
	WithFields(logrus.Fields{"op": "list"}).Warn("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "list", entry["op"])
	assert.Equal(t, "warning", entry["level"])
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWithOutput("loud", "text", &buf))
	t.Cleanup(func() { log = nil })

	Debug("no")
	Info("yes")
	assert.NotContains(t, buf.String(), "msg=no")
	assert.Contains(t, buf.String(), "msg=yes")
}
