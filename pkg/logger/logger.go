// Package logger provides leveled JSON logging for the assessment engine.
// Loggers are cheap to derive: With returns a child carrying bound fields,
// so each component holds its own logger tagged with Component(...).
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity a logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// String returns the upper-case name of the level.
func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a config string to a Level. Unrecognized values fall
// back to LevelInfo rather than failing startup.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Field is a single structured key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Typed field constructors.
func String(key, value string) Field          { return Field{key, value} }
func Int(key string, value int) Field         { return Field{key, value} }
func Int64(key string, value int64) Field     { return Field{key, value} }
func Float64(key string, value float64) Field { return Field{key, value} }
func Bool(key string, value bool) Field       { return Field{key, value} }
func Any(key string, value any) Field         { return Field{key, value} }

// Err renders an error under the "error" key. Nil errors log as null.
func Err(err error) Field {
	if err == nil {
		return Field{"error", nil}
	}
	return Field{"error", err.Error()}
}

// Duration logs a duration in its human-readable form ("150ms").
func Duration(key string, value time.Duration) Field {
	return Field{key, value.String()}
}

// Time logs a timestamp in RFC 3339.
func Time(key string, value time.Time) Field {
	return Field{key, value.Format(time.RFC3339)}
}

// Domain field helpers.
func LearnerID(id string) Field   { return String("learner_id", id) }
func SessionID(id string) Field   { return String("session_id", id) }
func Plan(name string) Field      { return String("plan", name) }
func Component(name string) Field { return String("component", name) }

// Options configures a root logger.
type Options struct {
	Output    io.Writer // defaults to os.Stdout
	Level     Level
	AddCaller bool // annotate lines with file:line of the call site
}

// Logger writes one JSON object per line. Safe for concurrent use; all
// derived loggers share the parent's mutex and writer.
type Logger struct {
	mu        *sync.Mutex
	out       io.Writer
	level     Level
	bound     []Field
	addCaller bool
}

// New builds a root logger from opts.
func New(opts Options) *Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	return &Logger{
		mu:        &sync.Mutex{},
		out:       opts.Output,
		level:     opts.Level,
		addCaller: opts.AddCaller,
	}
}

// Default returns an info-level logger writing to stdout with caller
// annotations. Used where no logger was injected.
func Default() *Logger {
	return New(Options{Level: LevelInfo, AddCaller: true})
}

// With derives a child logger carrying the given fields on every line.
func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.bound = append(l.bound[:len(l.bound):len(l.bound)], fields...)
	return &child
}

type line struct {
	TS     string         `json:"ts"`
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Caller string         `json:"caller,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(LevelError, msg, fields) }

func (l *Logger) emit(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}

	ln := line{
		TS:    time.Now().UTC().Format(time.RFC3339Nano),
		Level: level.String(),
		Msg:   msg,
	}
	if l.addCaller {
		if _, file, lineNo, ok := runtime.Caller(2); ok {
			if i := strings.LastIndexByte(file, '/'); i >= 0 {
				file = file[i+1:]
			}
			ln.Caller = fmt.Sprintf("%s:%d", file, lineNo)
		}
	}
	if n := len(l.bound) + len(fields); n > 0 {
		ln.Fields = make(map[string]any, n)
		for _, f := range l.bound {
			ln.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			ln.Fields[f.Key] = f.Value
		}
	}

	buf, err := json.Marshal(ln)
	if err != nil {
		buf = []byte(fmt.Sprintf(`{"ts":%q,"level":%q,"msg":%q}`, ln.TS, ln.Level, msg))
	}

	l.mu.Lock()
	l.out.Write(buf)
	l.out.Write([]byte{'\n'})
	l.mu.Unlock()
}
