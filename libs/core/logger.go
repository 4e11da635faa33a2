package core

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerItem is one structured log entry keyed by an event name
type LoggerItem struct {
	Event    string
	Messages string
	Error    error       `json:"error,omitempty"`
	Data     interface{} `json:"data"`
}

// Logger writes container events through zap
type Logger interface {
	Infor(*LoggerItem)
	Debug(event, message string, fields ...zap.Field)
	Zap() *zap.Logger
}

type logger struct {
	z *zap.Logger
}

// LogConfig selects the zap preset and level
type LogConfig struct {
	Environment string `yaml:"environment" json:"environment" validate:"omitempty,oneof=production development test"`
	Level       string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
}

// NewZapLogger builds a zap logger: sampled JSON in production, colored console otherwise
func NewZapLogger(cfg LogConfig) (*zap.Logger, error) {
	if cfg.Environment == "test" {
		return zap.NewNop(), nil
	}

	var zc zap.Config
	if cfg.Environment == "production" {
		zc = zap.NewProductionConfig()
		zc.Sampling = &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		}
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}

	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// NewLogger wraps z; a nil logger discards everything
func NewLogger(z *zap.Logger) Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &logger{z: z.Named("doffy")}
}

// InitLogger builds a logger from configuration, falling back to a no-op logger
func InitLogger(cfg LogConfig) Logger {
	z, err := NewZapLogger(cfg)
	if err != nil {
		return NewLogger(nil)
	}
	return NewLogger(z)
}

func (l *logger) Infor(payload *LoggerItem) {
	fields := []zap.Field{zap.String("event", payload.Event)}
	if payload.Data != nil {
		fields = append(fields, zap.Any("data", payload.Data))
	}
	if payload.Error != nil {
		l.z.Error(payload.Messages, append(fields, zap.Error(payload.Error))...)
		return
	}
	l.z.Info(payload.Messages, fields...)
}

func (l *logger) Debug(event, message string, fields ...zap.Field) {
	if ce := l.z.Check(zap.DebugLevel, message); ce != nil {
		ce.Write(append([]zap.Field{zap.String("event", event)}, fields...)...)
	}
}

func (l *logger) Zap() *zap.Logger { return l.z }
