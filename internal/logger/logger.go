package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

type Logger struct {
	mu           sync.Mutex
	out          io.Writer
	logFile      *os.File
	colorEnabled bool
	minLevel     LogLevel
}

// NewLogger writes coloured lines to stdout and JSON lines to
// <dir>/booking-service-<date>.log.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	logFileName := filepath.Join(dir, fmt.Sprintf("booking-service-%s.log", time.Now().Format("2006-01-02")))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Logger{
		out:          os.Stdout,
		logFile:      logFile,
		colorEnabled: true,
		minLevel:     ParseLevel(os.Getenv("LOG_LEVEL")),
	}
	l.Info("LOGGER", fmt.Sprintf("Log file: %s", logFileName))
	return l, nil
}

// NewWriterLogger writes plain terminal lines to w and keeps no file.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w, minLevel: DEBUG}
}

func NewNopLogger() *Logger {
	return NewWriterLogger(io.Discard)
}

func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.minLevel {
		return
	}
	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     levelToString(level),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, l.formatTerminalOutput(entry))
	if l.logFile != nil {
		jsonBytes, _ := json.Marshal(entry)
		l.logFile.Write(append(jsonBytes, '\n'))
	}
}

func (l *Logger) formatTerminalOutput(entry LogEntry) string {
	timestamp := entry.Timestamp[11:19]
	if !l.colorEnabled {
		return fmt.Sprintf("%s %-5s [%-10s] %s (%s:%d)\n", timestamp, entry.Level, entry.Category, entry.Message, entry.File, entry.Line)
	}

	var levelColor, categoryColor *color.Color
	switch entry.Level {
	case "DEBUG":
		levelColor = color.New(color.FgCyan)
		categoryColor = color.New(color.FgCyan, color.Bold)
	case "INFO":
		levelColor = color.New(color.FgGreen)
		categoryColor = color.New(color.FgGreen, color.Bold)
	case "WARN":
		levelColor = color.New(color.FgYellow)
		categoryColor = color.New(color.FgYellow, color.Bold)
	default:
		levelColor = color.New(color.FgRed)
		categoryColor = color.New(color.FgRed, color.Bold)
	}

	timeStr := color.New(color.FgBlue).Sprint(timestamp)
	levelStr := levelColor.Sprintf("%-5s", entry.Level)
	categoryStr := categoryColor.Sprintf("[%-10s]", entry.Category)
	if entry.File != "" && entry.Line > 0 {
		fileInfo := color.New(color.FgMagenta).Sprintf(" (%s:%d)", entry.File, entry.Line)
		return fmt.Sprintf("%s %s %s %s%s\n", timeStr, levelStr, categoryStr, entry.Message, fileInfo)
	}
	return fmt.Sprintf("%s %s %s %s\n", timeStr, levelStr, categoryStr, entry.Message)
}

func levelToString(level LogLevel) string {
	switch level {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "INFO"
	}
}

// Public logging methods
func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	l.Close()
	os.Exit(1)
}

// Component helpers
func (l *Logger) LogReservation(action, token, message string) {
	l.log(INFO, "RESERVATION", fmt.Sprintf("[%s] %s - %s", action, shortToken(token), message))
}

func (l *Logger) LogBooking(action, bookingNumber, message string) {
	l.log(INFO, "BOOKING", fmt.Sprintf("[%s] %s - %s", action, bookingNumber, message))
}

func (l *Logger) LogLedger(action, ticketTypeID, message string) {
	l.log(DEBUG, "LEDGER", fmt.Sprintf("[%s] %s - %s", action, ticketTypeID, message))
}

// LogIntegrity is the operator alert for ledger drift.
func (l *Logger) LogIntegrity(ticketTypeID, message string) {
	l.log(ERROR, "INTEGRITY", fmt.Sprintf("%s - %s", ticketTypeID, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.log(INFO, "API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.log(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogProcess(processName, message string) {
	l.log(INFO, "PROCESS", fmt.Sprintf("[%s] %s", processName, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.log(INFO, "DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.log(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.logFile != nil {
		l.logFile.Close()
		l.logFile = nil
	}
}

// shortToken keeps reservation tokens out of log files in full.
func shortToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "…"
}
