package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutputCarriesModule(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "Cache", "debug", true)
	log.Sub("Store").Infof("loaded %d rows", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Cache/Store", rec["module"])
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "[Cache/Store] loaded 3 rows", rec["message"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "", "WARNING", true)
	log.Debugf("hidden")
	log.Infof("hidden")
	log.Warnf("shown")
	log.Errorf("shown too")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "Cache", "info", false)
	log.Errorf("Failed to flush: %v", "disk full")

	out := buf.String()
	assert.Contains(t, out, "[Cache] Failed to flush: disk full")
	assert.NotContains(t, out, "module=")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "", "verbose", true)
	log.Debugf("hidden")
	assert.Empty(t, buf.String())
	log.Infof("shown")
	assert.NotEmpty(t, buf.String())
}
