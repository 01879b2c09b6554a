package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "cardmesh"})

// InitLog replaces the package logger. Until it is called, messages go to
// stderr at info level.
func InitLog(appName string, logLevel string) {
	InitLogTo(os.Stdout, appName, logLevel)
}

func InitLogTo(w io.Writer, appName string, logLevel string) {
	l := log.New(w)
	l.SetPrefix(appName)
	l.SetReportTimestamp(true)
	l.SetTimeFormat(time.DateTime)
	l.SetReportCaller(true)
	l.SetCallerOffset(1)
	l.SetLevel(ParseLevel(logLevel))
	logger = l
}

// ParseLevel maps a config string to a level; unknown values mean info.
func ParseLevel(logLevel string) log.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func SetLevel(logLevel string) {
	logger.SetLevel(ParseLevel(logLevel))
}

func Level() log.Level {
	return logger.GetLevel()
}

func Fatal(format string, args ...any) {
	if len(args) == 0 {
		logger.Fatal(format)
	} else {
		logger.Fatalf(format, args...)
	}
}

func Info(format string, args ...any) {
	if len(args) == 0 {
		logger.Info(format)
	} else {
		logger.Infof(format, args...)
	}
}

func Warn(format string, args ...any) {
	if len(args) == 0 {
		logger.Warn(format)
	} else {
		logger.Warnf(format, args...)
	}
}

func Error(format string, args ...any) {
	if len(args) == 0 {
		logger.Error(format)
	} else {
		logger.Errorf(format, args...)
	}
}

func Debug(format string, args ...any) {
	if len(args) == 0 {
		logger.Debug(format)
	} else {
		logger.Debugf(format, args...)
	}
}
