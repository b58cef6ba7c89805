package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging. Every event is appended to
// the in-memory ring (for post-hoc queries) and written to the audit sink.
type Logger interface {
	// Log logs an audit event.
	Log(ctx context.Context, event *Event) error

	// Ring exposes the bounded in-memory event buffer.
	Ring() *Ring

	// Sync flushes buffered log entries.
	Sync() error

	// Close closes the audit logger.
	Close() error
}

// Config represents audit logger configuration.
type Config struct {
	// AuditLogPath is the path to the audit log file. Empty writes audit
	// records to stderr alongside application logs.
	AuditLogPath string

	// RingSize bounds the in-memory event buffer.
	RingSize int

	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int

	// Compress determines if rotated files should be compressed.
	Compress bool
}

// DefaultConfig returns default audit logger configuration.
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "",
		RingSize:     10000,
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
	}
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	sink   *zap.Logger
	ring   *Ring
	config *Config

	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewLogger creates a new audit logger.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RingSize < 1 {
		config.RingSize = DefaultConfig().RingSize
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
	}

	// stdout belongs to the protocol; audit records go to a rotating file
	// when configured, stderr otherwise. Audit records are always INFO.
	var ws zapcore.WriteSyncer
	if config.AuditLogPath != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.AuditLogPath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	} else {
		ws = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), ws, zapcore.InfoLevel)

	logger := &auditLogger{
		sink:        zap.New(core),
		ring:        NewRing(config.RingSize),
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event.
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	if event.CorrelationID == "" {
		event.CorrelationID = CorrelationIDFrom(ctx)
	}

	l.ring.Append(event)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// Ring exposes the bounded in-memory event buffer.
func (l *auditLogger) Ring() *Ring {
	return l.ring
}

// flushLocked flushes the buffer (caller must hold lock).
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			continue
		}
		l.sink.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("severity", string(event.Severity)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer.
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// Sync flushes buffered log entries.
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	// Sync on stderr can fail on some platforms; the flush above already
	// handed records to the sink.
	_ = l.sink.Sync()
	return nil
}

// Close closes the audit logger.
func (l *auditLogger) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
	})
	return l.Sync()
}

type correlationIDKey struct{}

// CorrelationIDFrom extracts the correlation ID from context.
func CorrelationIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID.
func GenerateCorrelationID() string {
	return fmt.Sprintf("cid-%s", uuid.NewString())
}
