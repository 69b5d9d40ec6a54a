package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&Config{Level: InfoLevel, Output: buf})

	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("Debug message should not appear when level is Info")
	}

	logger.Info("info message")
	if buf.Len() == 0 {
		t.Error("Info message should appear when level is Info")
	}

	output := buf.String()
	if !strings.Contains(output, "info message") {
		t.Error("Output should contain the info message")
	}
	if !strings.Contains(output, "[INFO]") {
		t.Error("Output should contain the INFO level")
	}
}

func TestLogFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&Config{Level: InfoLevel, Output: buf})

	logger.Warn("retrying upload", map[string]interface{}{"attempt": 3})

	output := buf.String()
	if !strings.Contains(output, "attempt=3") {
		t.Errorf("expected field attempt=3 in output, got %q", output)
	}
}

func TestWithComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(&Config{Level: InfoLevel, Output: buf}).WithComponent("uploader")

	logger.Info("chunk uploaded")

	output := buf.String()
	if !strings.Contains(output, "component=uploader") {
		t.Errorf("expected component=uploader in output, got %q", output)
	}
}

func TestGetGlobalLoggerReturnsSharedInstance(t *testing.T) {
	first := GetGlobalLogger()
	second := GetGlobalLogger()
	if first != second {
		t.Error("GetGlobalLogger should return the same instance across calls")
	}
}

func TestInitGlobalLoggerReplacesSharedInstance(t *testing.T) {
	buf := &bytes.Buffer{}
	InitGlobalLogger(&Config{Level: DebugLevel, Output: buf})
	defer InitGlobalLogger(DefaultConfig())

	Debug("debug via package function")

	if !strings.Contains(buf.String(), "debug via package function") {
		t.Error("package-level Debug should route through the global logger")
	}
}
