package gologger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ZerologLogger writes glog calls as zerolog JSON lines. Variadic args are
// read as key/value pairs; a trailing odd value is logged under "extra".
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger builds a logger at level ("trace" through "fatal"). An
// unknown level falls back to info. A nil writer logs to stderr.
func NewZerologLogger(w io.Writer, level string) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return &ZerologLogger{
		logger: zerolog.New(w).Level(parsed).With().Timestamp().Logger(),
	}
}

func (l *ZerologLogger) Trace(msg string, args ...any) { l.emit(l.logger.Trace(), msg, args) }
func (l *ZerologLogger) Debug(msg string, args ...any) { l.emit(l.logger.Debug(), msg, args) }
func (l *ZerologLogger) Info(msg string, args ...any)  { l.emit(l.logger.Info(), msg, args) }
func (l *ZerologLogger) Warn(msg string, args ...any)  { l.emit(l.logger.Warn(), msg, args) }
func (l *ZerologLogger) Error(msg string, args ...any) { l.emit(l.logger.Error(), msg, args) }

// Fatal logs at fatal level without exiting; callers decide how to stop.
func (l *ZerologLogger) Fatal(msg string, args ...any) {
	l.emit(l.logger.WithLevel(zerolog.FatalLevel), msg, args)
}

func (l *ZerologLogger) WithContext(ctx context.Context) glog.Logger {
	if l == nil || ctx == nil {
		return l
	}
	return &ZerologLogger{logger: l.logger.With().Ctx(ctx).Logger()}
}

func (l *ZerologLogger) WithFields(fields map[string]any) glog.Logger {
	if l == nil || len(fields) == 0 {
		return l
	}
	return &ZerologLogger{logger: l.logger.With().Fields(fields).Logger()}
}

func (l *ZerologLogger) named(name string) *ZerologLogger {
	name = strings.TrimSpace(name)
	if l == nil || name == "" {
		return l
	}
	return &ZerologLogger{logger: l.logger.With().Str("logger", name).Logger()}
}

func (l *ZerologLogger) emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	if len(args) > 0 {
		event = event.Fields(keyValues(args))
	}
	event.Msg(msg)
}

func keyValues(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2+1)
	for i := 0; i+1 < len(args); i += 2 {
		fields[fmt.Sprint(args[i])] = args[i+1]
	}
	if len(args)%2 == 1 {
		fields["extra"] = args[len(args)-1]
	}
	return fields
}

// ZerologProvider hands out named children of one root logger.
type ZerologProvider struct {
	root *ZerologLogger
}

func NewZerologProvider(root *ZerologLogger) *ZerologProvider {
	if root == nil {
		root = NewZerologLogger(nil, "info")
	}
	return &ZerologProvider{root: root}
}

func (p *ZerologProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	return p.root.named(name)
}

var (
	_ glog.Logger         = (*ZerologLogger)(nil)
	_ glog.FieldsLogger   = (*ZerologLogger)(nil)
	_ glog.LoggerProvider = (*ZerologProvider)(nil)
)
