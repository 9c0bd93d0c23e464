package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level controls which messages are emitted.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	mu       sync.Mutex
	minLevel = INFO
	output   = os.Stderr
)

// SetLevel sets the minimum level that will be logged.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return minLevel
}

func logf(level Level, component, msg string, fields map[string]interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if level < minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(level.String())
	b.WriteString("]")
	if component != "" {
		b.WriteString(" [")
		b.WriteString(component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)
	b.WriteString(formatFields(fields))
	b.WriteString("\n")
	fmt.Fprint(output, b.String())
}

// formatFields renders fields as sorted key=value pairs so log lines
// are stable across runs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(formatValue(fields[k]))
	}
	return b.String()
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t\n\"") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case error:
		return fmt.Sprintf("%q", val.Error())
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Debug logs a message at DEBUG level.
func Debug(msg string) { logf(DEBUG, "", msg, nil) }

// Info logs a message at INFO level.
func Info(msg string) { logf(INFO, "", msg, nil) }

// Warn logs a message at WARN level.
func Warn(msg string) { logf(WARN, "", msg, nil) }

// Error logs a message at ERROR level.
func Error(msg string) { logf(ERROR, "", msg, nil) }

// DebugC logs a component-tagged message at DEBUG level.
func DebugC(component, msg string) { logf(DEBUG, component, msg, nil) }

// InfoC logs a component-tagged message at INFO level.
func InfoC(component, msg string) { logf(INFO, component, msg, nil) }

// WarnC logs a component-tagged message at WARN level.
func WarnC(component, msg string) { logf(WARN, component, msg, nil) }

// ErrorC logs a component-tagged message at ERROR level.
func ErrorC(component, msg string) { logf(ERROR, component, msg, nil) }

// DebugCF logs a component-tagged message with structured fields at DEBUG level.
func DebugCF(component, msg string, fields map[string]interface{}) {
	logf(DEBUG, component, msg, fields)
}

// InfoCF logs a component-tagged message with structured fields at INFO level.
func InfoCF(component, msg string, fields map[string]interface{}) {
	logf(INFO, component, msg, fields)
}

// WarnCF logs a component-tagged message with structured fields at WARN level.
func WarnCF(component, msg string, fields map[string]interface{}) {
	logf(WARN, component, msg, fields)
}

// ErrorCF logs a component-tagged message with structured fields at ERROR level.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	logf(ERROR, component, msg, fields)
}
