package audit

import (
	"context"
	"log/slog"
)

// LogRepo writes each event as one structured log line under the "audit"
// key, for shipping by the log pipeline.
type LogRepo struct {
	log *slog.Logger
}

func NewLogRepo(log *slog.Logger) *LogRepo {
	if log == nil {
		log = slog.Default()
	}
	return &LogRepo{log: log}
}

func (r *LogRepo) Append(ctx context.Context, e Event) error {
	r.log.LogAttrs(ctx, slog.LevelInfo, "audit event",
		slog.Group("audit",
			slog.String("id", e.ID),
			slog.String("type", string(e.Type)),
			slog.String("operator", e.Operator),
			slog.String("role", e.Role),
			slog.String("ip_address", e.IPAddress),
			slog.String("service", e.Service),
			slog.String("call_id", e.CallID),
			slog.String("method", e.Method),
			slog.String("target_url", e.TargetURL),
			slog.Int("status", e.Status),
			slog.String("outcome", e.Outcome),
			slog.Time("created_at", e.CreatedAt),
		),
	)
	return nil
}
