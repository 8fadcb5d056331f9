package pkjwt

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging backends accepted by NewLogger.
const (
	LogBackendLogrus  = "logrus"
	LogBackendZap     = "zap"
	LogBackendZerolog = "zerolog"
)

// NewLogger builds a Logger for backend writing to w. level is one of
// debug, info, warn or error; format is "json" or "text". An empty backend
// selects logrus.
func NewLogger(backend, level, format string, w io.Writer) (Logger, error) {
	if level == "" {
		level = "info"
	}
	jsonFormat := strings.EqualFold(format, "json")

	switch strings.ToLower(backend) {
	case "", LogBackendLogrus:
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		l := logrus.New()
		l.SetOutput(w)
		l.SetLevel(lvl)
		if jsonFormat {
			l.SetFormatter(&logrus.JSONFormatter{})
		} else {
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
		}
		return NewLogrusLogger(l), nil

	case LogBackendZap:
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder := zapcore.NewConsoleEncoder(encoderConfig)
		if jsonFormat {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		return NewZapLogger(zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), lvl))), nil

	case LogBackendZerolog:
		lvl, err := zerolog.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		out := w
		if !jsonFormat {
			out = zerolog.ConsoleWriter{Out: w, NoColor: true}
		}
		return NewZerologLogger(zerolog.New(out).Level(lvl).With().Timestamp().Logger()), nil

	default:
		return nil, fmt.Errorf("unknown log backend %q", backend)
	}
}

// NewLogrusLogger adapts a logrus logger. Key/value pairs become fields.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return &logrusLoggerAdapter{l}
}

type logrusLoggerAdapter struct{ l logrus.FieldLogger }

func (a *logrusLoggerAdapter) Debug(msg string, args ...any) { a.l.WithFields(fields(args)).Debug(msg) }
func (a *logrusLoggerAdapter) Info(msg string, args ...any) { a.l.WithFields(fields(args)).Info(msg) }
func (a *logrusLoggerAdapter) Warn(msg string, args ...any) { a.l.WithFields(fields(args)).Warn(msg) }
func (a *logrusLoggerAdapter) Error(msg string, args ...any) { a.l.WithFields(fields(args)).Error(msg) }

// fields turns slog style key/value pairs into logrus fields. A dangling
// value is kept under !BADKEY like log/slog does.
func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			f["!BADKEY"] = args[i]
			break
		}
		f[fmt.Sprint(args[i])] = args[i+1]
	}
	return f
}

// NewZapLogger adapts a zap logger through its sugared form.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLoggerAdapter{l.Sugar()}
}

type zapLoggerAdapter struct{ l *zap.SugaredLogger }

func (a *zapLoggerAdapter) Debug(msg string, args ...any) { a.l.Debugw(msg, args...) }
func (a *zapLoggerAdapter) Info(msg string, args ...any) { a.l.Infow(msg, args...) }
func (a *zapLoggerAdapter) Warn(msg string, args ...any) { a.l.Warnw(msg, args...) }
func (a *zapLoggerAdapter) Error(msg string, args ...any) { a.l.Errorw(msg, args...) }

// NewZerologLogger adapts a zerolog logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLoggerAdapter{l}
}

type zerologLoggerAdapter struct{ l zerolog.Logger }

func (a *zerologLoggerAdapter) Debug(msg string, args ...any) {
	a.l.Debug().Fields(args).Msg(msg)
}

func (a *zerologLoggerAdapter) Info(msg string, args ...any) {
	a.l.Info().Fields(args).Msg(msg)
}

func (a *zerologLoggerAdapter) Warn(msg string, args ...any) {
	a.l.Warn().Fields(args).Msg(msg)
}

func (a *zerologLoggerAdapter) Error(msg string, args ...any) {
	a.l.Error().Fields(args).Msg(msg)
}
