package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditWritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("info", &buf)

	l.Audit("u-1", "approve", "appointment:a-1", true, map[string]interface{}{"status": "CONFIRMED"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit event", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "u-1", line["user_id"])
	assert.Equal(t, true, line["audit"])
	assert.Contains(t, line, "timestamp")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOutput("chatty", &buf)

	l.Debug("hidden")
	assert.Zero(t, buf.Len())
	l.WithComponent("scheduler").Info("shown")
	assert.Contains(t, buf.String(), `"component":"scheduler"`)
}
