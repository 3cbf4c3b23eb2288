package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Leveled logger shared by the collab service.
// - Debug/Info/Warn/Error/Fatal variants and Init(level)
// - WithFields for room/connection scoped entries

// Fields is the structured context attached to an entry.
type Fields = logrus.Fields

var base = newBase(os.Stdout)

func newBase(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return l
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Unknown values fall back to info.
func Init(l string) {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		base.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		base.SetLevel(logrus.WarnLevel)
	case "error":
		base.SetLevel(logrus.ErrorLevel)
	case "fatal":
		base.SetLevel(logrus.FatalLevel)
	default:
		base.SetLevel(logrus.InfoLevel)
	}
}

// SetFormat switches between "text" (default) and "json" output.
func SetFormat(f string) {
	if strings.EqualFold(strings.TrimSpace(f), "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
}

// SetOutput redirects all log output. Used by tests.
func SetOutput(w io.Writer) { base.SetOutput(w) }

// WithFields returns an entry carrying structured context.
func WithFields(f Fields) *logrus.Entry { return base.WithFields(f) }

func Debugf(format string, v ...interface{}) { base.Debugf(format, v...) }
func Infof(format string, v ...interface{})  { base.Infof(format, v...) }
func Warnf(format string, v ...interface{})  { base.Warnf(format, v...) }
func Errorf(format string, v ...interface{}) { base.Errorf(format, v...) }

func Fatalf(format string, v ...interface{}) {
	base.Logf(logrus.FatalLevel, format, v...)
	os.Exit(1)
}

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) {
	base.Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Debug(v string) { base.Debug(v) }
func Info(v string)  { base.Info(v) }
func Warn(v string)  { base.Warn(v) }
func Error(v string) { base.Error(v) }

// LevelString returns the current level as text.
func LevelString() string {
	switch base.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "debug"
	case logrus.WarnLevel:
		return "warn"
	case logrus.ErrorLevel:
		return "error"
	case logrus.FatalLevel, logrus.PanicLevel:
		return "fatal"
	}
	return "info"
}
