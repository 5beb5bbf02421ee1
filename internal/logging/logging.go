package logging

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Status icons used throughout the agent's log stream.
const (
	IconStart    = "🚀"
	IconPoll     = "🔎"
	IconLock     = "🔒"
	IconUnlock   = "🔓"
	IconClone    = "📦"
	IconBranch   = "🌿"
	IconClaude   = "🤖"
	IconPR       = "🔀"
	IconComment  = "💬"
	IconRace     = "🏁"
	IconDone     = "✨"
	IconShutdown = "🛑"
)

// Logger writes emoji-tagged log lines. All outcomes the agent produces are
// communicated through this stream; there is no separate error channel.
type Logger struct {
	l *log.Logger
}

// New creates a logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{l: log.New(w, "", log.LstdFlags)}
}

// Default returns a logger writing to stdout.
func Default() *Logger {
	return New(os.Stdout)
}

// Iconf logs a message tagged with the given icon.
func (lg *Logger) Iconf(icon, format string, v ...any) {
	lg.l.Printf("%s %s", icon, fmt.Sprintf(format, v...))
}

// Infof logs an informational message.
func (lg *Logger) Infof(format string, v ...any) {
	lg.Iconf("ℹ️", format, v...)
}

// Warnf logs a warning.
func (lg *Logger) Warnf(format string, v ...any) {
	lg.Iconf("⚠️", format, v...)
}

// Errorf logs an error.
func (lg *Logger) Errorf(format string, v ...any) {
	lg.Iconf("❌", format, v...)
}

// Std exposes the underlying stdlib logger for collaborators that want one.
func (lg *Logger) Std() *log.Logger {
	return lg.l
}
