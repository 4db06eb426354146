// Package monitoring provides the observability stack: zap-backed structured
// logging, prometheus metrics, and OpenTelemetry tracing.
package monitoring

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bitizen-labs/sessiond/internal/config"
	"github.com/bitizen-labs/sessiond/pkg/constants"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// ZapLogger implements the logging contract over a shared zap core. The
// level is an AtomicLevel so configuration reloads take effect without a
// restart.
type ZapLogger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// NewZapLogger builds the process logger from the log configuration.
func NewZapLogger(cfg *config.LogConfig) (*ZapLogger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", constants.ServiceName))

	return &ZapLogger{zap: z, level: level}, nil
}

// SetLevel changes the minimum logged level at runtime. Unknown names are
// ignored.
func (l *ZapLogger) SetLevel(levelName string) {
	var parsed zapcore.Level
	if err := parsed.UnmarshalText([]byte(levelName)); err == nil {
		l.level.SetLevel(parsed)
	}
}

// Sync flushes buffered entries. Call on shutdown.
func (l *ZapLogger) Sync() error {
	return l.zap.Sync()
}

func (l *ZapLogger) Debug(ctx context.Context, message string, fields ...logger.Field) {
	l.zap.Debug(message, l.convert(ctx, fields, nil)...)
}

func (l *ZapLogger) Info(ctx context.Context, message string, fields ...logger.Field) {
	l.zap.Info(message, l.convert(ctx, fields, nil)...)
}

func (l *ZapLogger) Warn(ctx context.Context, message string, fields ...logger.Field) {
	l.zap.Warn(message, l.convert(ctx, fields, nil)...)
}

func (l *ZapLogger) Error(ctx context.Context, message string, err error, fields ...logger.Field) {
	l.zap.Error(message, l.convert(ctx, fields, err)...)
}

func (l *ZapLogger) Fatal(ctx context.Context, message string, err error, fields ...logger.Field) {
	l.zap.Fatal(message, l.convert(ctx, fields, err)...)
}

func (l *ZapLogger) WithFields(fields ...logger.Field) logger.Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, f.Value))
	}
	return &ZapLogger{zap: l.zap.With(zapFields...), level: l.level}
}

func (l *ZapLogger) WithComponent(component string) logger.Logger {
	return &ZapLogger{zap: l.zap.With(zap.String("component", component)), level: l.level}
}

// convert maps the portable fields to zap fields and attaches the request id
// when the context carries one.
func (l *ZapLogger) convert(ctx context.Context, fields []logger.Field, err error) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)+2)
	if ctx != nil {
		if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok && requestID != "" {
			zapFields = append(zapFields, zap.String("request_id", requestID))
		}
	}
	for _, f := range fields {
		zapFields = append(zapFields, zap.Any(f.Key, f.Value))
	}
	if err != nil {
		zapFields = append(zapFields, zap.Error(err))
	}
	return zapFields
}
