package logger

import (
	"flag"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variable name for log level configuration.
const envLogLevel = "STREAMCORE_LOG_LEVEL"

var (
	atomicLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	global      *zap.SugaredLogger
	initOnce    sync.Once

	// Optional flag (users may pass -log.level=debug). If flags.Parse() hasn't
	// yet been called when Init is invoked, we still read the raw os.Args.
	flagLevel = flag.String("log.level", "", "log level (debug, info, warn, error)")
)

// Init initializes the global logger. It is safe to call multiple times; the
// first call wins except SetLevel / UseWriter which mutate state intentionally.
func Init() {
	initOnce.Do(func() {
		atomicLevel.SetLevel(detectLevel())
		global = buildLogger(zapcore.AddSync(os.Stdout))
	})
}

func buildLogger(ws zapcore.WriteSyncer) *zap.SugaredLogger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, atomicLevel)
	return zap.New(core).Sugar()
}

// detectLevel resolves the initial log level from (precedence high→low):
//  1. command-line flag -log.level
//  2. environment variable STREAMCORE_LOG_LEVEL
//  3. default (info)
func detectLevel() zapcore.Level {
	if *flagLevel == "" {
		for _, arg := range os.Args[1:] {
			if strings.HasPrefix(arg, "-log.level=") {
				parts := strings.SplitN(arg, "=", 2)
				if len(parts) == 2 {
					*flagLevel = parts[1]
				}
			}
		}
	}
	if lvl, ok := parseLevel(strings.TrimSpace(*flagLevel)); ok {
		return lvl
	}
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	return zap.InfoLevel
}

func parseLevel(s string) (zapcore.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return zap.DebugLevel, true
	case "info", "":
		return zap.InfoLevel, true
	case "warn", "warning":
		return zap.WarnLevel, true
	case "error", "err":
		return zap.ErrorLevel, true
	}
	return 0, false
}

// SetLevel changes the runtime log level.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return errInvalidLevel(level)
	}
	atomicLevel.SetLevel(lvl)
	return nil
}

type invalidLevelError string

func (e invalidLevelError) Error() string { return "invalid log level: " + string(e) }
func errInvalidLevel(level string) error  { return invalidLevelError(level) }

// Level returns the current runtime level as a string.
func Level() string {
	Init()
	return atomicLevel.Level().String()
}

// UseWriter swaps the output writer (intended for tests). Retains current level.
func UseWriter(w io.Writer) {
	Init()
	global = buildLogger(zapcore.AddSync(w))
}

// Logger returns the global logger (ensures Init was called).
func Logger() *zap.SugaredLogger { Init(); return global }

// Convenience top-level logging functions.
func Debug(args ...any) { Logger().Debug(args...) }
func Info(args ...any)  { Logger().Info(args...) }
func Warn(args ...any)  { Logger().Warn(args...) }
func Error(args ...any) { Logger().Error(args...) }

// WithConn attaches connection identity fields.
func WithConn(l *zap.SugaredLogger, connID, peerAddr string) *zap.SugaredLogger {
	return l.With("conn_id", connID, "peer_addr", peerAddr)
}

// WithItem attaches the catalog item being acted on.
func WithItem(l *zap.SugaredLogger, itemID string) *zap.SugaredLogger {
	return l.With("item_id", itemID)
}

// WithSeq attaches a Mercury/AudioKey dispatcher sequence id.
func WithSeq(l *zap.SugaredLogger, seq uint64) *zap.SugaredLogger {
	return l.With("seq", seq)
}
