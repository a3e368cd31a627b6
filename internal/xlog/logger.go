// Package xlog provides small structured logging used across the fabric,
// worker runtime, and scheduler. It favors explicit fields over format
// strings so log lines stay greppable under load.
package xlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log line.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
}

var levelColors = map[Level]string{
	Debug: "\033[36m",
	Info:  "\033[32m",
	Warn:  "\033[33m",
	Error: "\033[31m",
}

const colorReset = "\033[0m"

// Field is a key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

func String(key, v string) Field                 { return Field{key, v} }
func Uint32(key string, v uint32) Field          { return Field{key, v} }
func Uint64(key string, v uint64) Field          { return Field{key, v} }
func Int(key string, v int) Field                { return Field{key, v} }
func Bool(key string, v bool) Field              { return Field{key, v} }
func Err(err error) Field                        { return Field{"error", err} }
func Duration(key string, d time.Duration) Field { return Field{key, d} }
func Any(key string, v any) Field                { return Field{key, v} }

func (f Field) format() string {
	switch v := f.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case time.Duration:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Logger is a leveled, component-tagged logger writing to an io.Writer.
type Logger struct {
	mu        sync.Mutex
	level     Level
	component string
	output    io.Writer
	colorize  bool
}

// Config configures a Logger.
type Config struct {
	Level     Level
	Component string
	Output    io.Writer
	Colorize  bool
}

// New creates a Logger from Config, defaulting Output to os.Stdout.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	return &Logger{level: cfg.Level, component: cfg.Component, output: cfg.Output, colorize: cfg.Colorize}
}

// Default returns a sensible INFO-level, colorized logger for component.
func Default(component string) *Logger {
	return New(Config{Level: Info, Component: component, Output: os.Stdout, Colorize: true})
}

// With returns a derived logger scoped to a sub-component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{level: l.level, component: l.component + "." + component, output: l.output, colorize: l.colorize}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(Error, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	var b strings.Builder
	if l.colorize {
		b.WriteString(levelColors[level])
	}
	b.WriteString("[")
	b.WriteString(time.Now().Format("15:04:05.000"))
	b.WriteString("] [")
	b.WriteString(fmt.Sprintf("%-5s", levelNames[level]))
	b.WriteString("] ")
	if l.component != "" {
		b.WriteString("[")
		b.WriteString(l.component)
		b.WriteString("] ")
	}
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.format())
	}
	if l.colorize {
		b.WriteString(colorReset)
	}
	b.WriteString("\n")
	_, _ = l.output.Write([]byte(b.String()))
	platformLog(level, msg)
}
