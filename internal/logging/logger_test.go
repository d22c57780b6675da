package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, TRACE, ParseLevel("trace"))
	assert.Equal(t, DEBUG, ParseLevel(" Debug "))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("что-то"), "неизвестный уровень должен давать INFO")
}

func TestDefaultLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(WARN, WARN)
	defer SetLevel(INFO, DEBUG)

	Info("не должно попасть")
	Warn("очередь переполнена: %d", 3)

	out := buf.String()
	assert.NotContains(t, out, "не должно попасть")
	assert.Contains(t, out, "[WARN] очередь переполнена: 3")
}

func TestLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, InitDefaultLogger("test", dir))
	defer func() {
		CloseDefaultLogger()
		_ = InitDefaultLogger("", "")
	}()

	var buf bytes.Buffer
	SetOutput(&buf)
	Error("сбой %s", "хранилища")

	assert.True(t, strings.Contains(buf.String(), "[ERROR] [test] сбой хранилища"))
}

func TestLoggerManagerReusesComponents(t *testing.T) {
	lm := GetLoggerManager()
	a := lm.MustGetLogger("storage-test")
	b := lm.MustGetLogger("storage-test")
	assert.Same(t, a, b)
	assert.Contains(t, lm.ListComponents(), "storage-test")
	assert.Error(t, lm.SetLogLevel("нет-такого", DEBUG, DEBUG))
}

func TestLoggerManagerAppliesSharedLevels(t *testing.T) {
	lm := &LoggerManager{loggers: make(map[string]*Logger)}
	before := lm.MustGetLogger("до")
	lm.SetLevels(ERROR, WARN)
	after := lm.MustGetLogger("после")

	for _, l := range []*Logger{before, after} {
		assert.Equal(t, ERROR, l.minConsoleLevel)
		assert.Equal(t, WARN, l.minFileLevel)
	}
	assert.Equal(t, []string{"до", "после"}, lm.ListComponents())
	assert.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.ListComponents())
}
