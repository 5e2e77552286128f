// Package logging implements the leveled, template-formatted logger used
// across rosettad. It is adapted from the teacher's own air.Logger: the
// same level set, the same text/template-formatted single line, the same
// sync.Pool of scratch buffers guarded by one mutex.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"text/template"
	"time"
)

// Level is the severity of a log line.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// ParseLevel parses a level name, defaulting to LevelInfo on any unknown
// string so a bad log-level config value degrades gracefully rather than
// silencing the logger.
func ParseLevel(s string) Level {
	for i, n := range levelNames {
		if n == s {
			return Level(i)
		}
	}
	return LevelInfo
}

// DefaultFormat mirrors the teacher's DefaultLoggerConfig.Format, renamed
// fields for this domain (no app_name concept): time, level and message.
const DefaultFormat = `{"time":"${time}","level":"${level}","message":"${message}"}`

// Logger is a leveled logger that writes formatted lines to Output.
type Logger struct {
	Output io.Writer
	Min    Level

	tmplOnce sync.Once
	tmpl     *template.Template
	format   string

	bufferPool sync.Pool
	mu         sync.Mutex
}

// New returns a Logger writing to os.Stdout at the given minimum level
// using format (DefaultFormat if empty).
func New(min Level, format string) *Logger {
	if format == "" {
		format = DefaultFormat
	}
	return &Logger{
		Output: os.Stdout,
		Min:    min,
		format: format,
		bufferPool: sync.Pool{
			New: func() interface{} { return bytes.NewBuffer(make([]byte, 0, 256)) },
		},
	}
}

// template parses the format once. "${name}" placeholders (the form
// DefaultFormat uses) are rewritten to "{{.name}}" before parsing.
func (l *Logger) template() *template.Template {
	l.tmplOnce.Do(func() {
		placeholder := regexp.MustCompile(`\$\{(\w+)\}`)
		l.tmpl = template.Must(template.New("logger").Parse(placeholder.ReplaceAllString(l.format, "{{.$1}}")))
	})
	return l.tmpl
}

func (l *Logger) log(lvl Level, fields map[string]interface{}, format string, args ...interface{}) {
	if lvl < l.Min {
		return
	}

	message := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()

	buf := l.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer l.bufferPool.Put(buf)

	data := map[string]interface{}{
		"time":    time.Now().Format(time.RFC3339),
		"level":   lvl.String(),
		"message": message,
	}
	if err := l.template().Execute(buf, data); err != nil {
		fmt.Fprintf(l.Output, "%s %s %s\n", data["time"], lvl, message)
		return
	}

	if len(fields) > 0 {
		appendFields(buf, fields)
	}

	buf.WriteByte('\n')
	l.Output.Write(buf.Bytes())

	if lvl == LevelFatal {
		os.Exit(1)
	}
}

// appendFields splices extra key/value pairs into a JSON-object-shaped
// buffer produced by the template, matching the teacher's logger.go trick
// of truncating the closing brace and re-opening it.
func appendFields(buf *bytes.Buffer, fields map[string]interface{}) {
	b := buf.Bytes()
	i := len(b) - 1
	for i >= 0 && (b[i] == '\n' || b[i] == ' ') {
		i--
	}
	if i < 0 || b[i] != '}' {
		return
	}
	buf.Truncate(i)
	for k, v := range fields {
		jv, err := json.Marshal(v)
		if err != nil {
			continue
		}
		buf.WriteByte(',')
		jk, _ := json.Marshal(k)
		buf.Write(jk)
		buf.WriteByte(':')
		buf.Write(jv)
	}
	buf.WriteByte('}')
}

func (l *Logger) Debug(format string, args ...interface{})                    { l.log(LevelDebug, nil, format, args...) }
func (l *Logger) Info(format string, args ...interface{})                     { l.log(LevelInfo, nil, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})                     { l.log(LevelWarn, nil, format, args...) }
func (l *Logger) Error(format string, args ...interface{})                    { l.log(LevelError, nil, format, args...) }
func (l *Logger) Fatal(format string, args ...interface{})                    { l.log(LevelFatal, nil, format, args...) }
func (l *Logger) DebugF(fields map[string]interface{}, format string, a ...interface{}) { l.log(LevelDebug, fields, format, a...) }
func (l *Logger) InfoF(fields map[string]interface{}, format string, a ...interface{})  { l.log(LevelInfo, fields, format, a...) }
func (l *Logger) WarnF(fields map[string]interface{}, format string, a ...interface{})  { l.log(LevelWarn, fields, format, a...) }
func (l *Logger) ErrorF(fields map[string]interface{}, format string, a ...interface{}) { l.log(LevelError, fields, format, a...) }
