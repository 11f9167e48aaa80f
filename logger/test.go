package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
	Metadata  map[string]interface{}
}

type testLogs struct {
	mutex   sync.Mutex
	entries []TestLogEntry
}

// TestLogger records every entry so tests can assert on them. Loggers
// derived with With or WithPrefix record into the same list.
type TestLogger struct {
	metadata map[string]interface{}
	logs     *testLogs
}

var _ Logger = (*TestLogger)(nil)

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *TestLogger) WithPrefix(prefix string) Logger {
	return c
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{}, len(c.metadata)+len(metadata))
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{metadata: kv, logs: c.logs}
}

func (c *TestLogger) IsLevelEnabled(level LogLevel) bool {
	return true
}

func (c *TestLogger) Log(level string, msg string, args ...interface{}) {
	c.logs.mutex.Lock()
	c.logs.entries = append(c.logs.entries, TestLogEntry{level, msg, args, c.metadata})
	c.logs.mutex.Unlock()
}

func (c *TestLogger) Trace(msg string, args ...interface{}) {
	c.Log("TRACE", msg, args...)
}

func (c *TestLogger) Debug(msg string, args ...interface{}) {
	c.Log("DEBUG", msg, args...)
}

func (c *TestLogger) Info(msg string, args ...interface{}) {
	c.Log("INFO", msg, args...)
}

func (c *TestLogger) Warn(msg string, args ...interface{}) {
	c.Log("WARNING", msg, args...)
}

func (c *TestLogger) Error(msg string, args ...interface{}) {
	c.Log("ERROR", msg, args...)
}

func (c *TestLogger) Fatal(msg string, args ...interface{}) {
	c.Log("FATAL", msg, args...)
	os.Exit(1)
}

// Logs returns a copy of the recorded entries.
func (c *TestLogger) Logs() []TestLogEntry {
	c.logs.mutex.Lock()
	defer c.logs.mutex.Unlock()
	return append([]TestLogEntry(nil), c.logs.entries...)
}

// String returns the formatted message.
func (e TestLogEntry) String() string {
	if len(e.Arguments) == 0 {
		return e.Message
	}
	return fmt.Sprintf(e.Message, e.Arguments...)
}

// Count returns how many entries have the given severity and a formatted
// message containing substr.
func (c *TestLogger) Count(severity string, substr string) int {
	var n int
	for _, entry := range c.Logs() {
		if entry.Severity == severity && strings.Contains(entry.String(), substr) {
			n++
		}
	}
	return n
}

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{logs: &testLogs{}}
}
