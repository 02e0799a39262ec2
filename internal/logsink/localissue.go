package logsink

import (
	"context"

	"github.com/geoinfo-winterthur/cadusage/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// IssueLog records heartbeat problems together with the raw identifiers
// that are kept out of remote log records. It writes to a local file
// only, so administrators can investigate without login names ever
// leaving the machine.
type IssueLog struct {
	log *zap.Logger
}

// NewIssueLog opens the local issue log file. A broken path degrades to
// a no-op logger rather than failing startup.
func NewIssueLog(cfg config.Config, fallback *zap.Logger) *IssueLog {
	if cfg.LocalIssueLogPath == "" {
		return &IssueLog{log: zap.NewNop()}
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{cfg.LocalIssueLogPath}
	zcfg.ErrorOutputPaths = []string{cfg.LocalIssueLogPath}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.Sampling = nil

	log, err := zcfg.Build()
	if err != nil {
		if fallback != nil {
			fallback.Warn("issue log unavailable", zap.String("path", cfg.LocalIssueLogPath), zap.Error(err))
		}
		return &IssueLog{log: zap.NewNop()}
	}
	return &IssueLog{log: log}
}

// Report writes one issue entry with the raw identifiers attached.
func (l *IssueLog) Report(_ context.Context, message string, fields ...zap.Field) {
	if l == nil || l.log == nil {
		return
	}
	l.log.Warn(message, fields...)
}

// Close flushes buffered entries.
func (l *IssueLog) Close() {
	if l == nil || l.log == nil {
		return
	}
	_ = l.log.Sync()
}
