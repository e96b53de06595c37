package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const moduleField = "module"

// Logger implements waLog.Logger on top of zerolog.
type Logger struct {
	module string
	zl     zerolog.Logger
}

// New creates a console Logger writing to stderr.
func New(module string, level string) *Logger {
	return NewWithWriter(os.Stderr, module, level, false)
}

// NewWithWriter creates a Logger writing to w. With jsonOutput the records
// are written as zerolog JSON, otherwise as colored console lines.
func NewWithWriter(w io.Writer, module, level string, jsonOutput bool) *Logger {
	if !jsonOutput {
		w = zerolog.ConsoleWriter{
			Out:           w,
			TimeFormat:    "15:04:05.000",
			NoColor:       !isTerminal(w),
			FieldsExclude: []string{moduleField},
		}
	}
	zl := zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Logger()
	return &Logger{module: module, zl: zl}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// parseLevel converts string level to a zerolog level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Sub creates a sub-logger with a new module name.
func (l *Logger) Sub(module string) waLog.Logger {
	newModule := module
	if l.module != "" {
		newModule = l.module + "/" + module
	}
	return &Logger{module: newModule, zl: l.zl}
}

func (l *Logger) Debugf(msg string, args ...interface{}) {
	l.log(l.zl.Debug(), msg, args...)
}

func (l *Logger) Infof(msg string, args ...interface{}) {
	l.log(l.zl.Info(), msg, args...)
}

func (l *Logger) Warnf(msg string, args ...interface{}) {
	l.log(l.zl.Warn(), msg, args...)
}

func (l *Logger) Errorf(msg string, args ...interface{}) {
	l.log(l.zl.Error(), msg, args...)
}

func (l *Logger) log(evt *zerolog.Event, msg string, args ...interface{}) {
	if evt == nil {
		return
	}
	text := fmt.Sprintf(msg, args...)
	if l.module != "" {
		evt = evt.Str(moduleField, l.module)
		text = "[" + l.module + "] " + text
	}
	evt.Msg(text)
}

// Ensure Logger implements waLog.Logger.
var _ waLog.Logger = (*Logger)(nil)
