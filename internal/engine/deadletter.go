package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yunseo-park/kimpbot/internal/domain"
	"github.com/yunseo-park/kimpbot/internal/notify"
)

// DeadLetterInspector periodically surfaces the dead-letter backlog so
// operators notice parked cycles without watching the database. Inspection
// is read-only; recovery stays a manual operation.
type DeadLetterInspector struct {
	cycles   domain.CycleStore
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewDeadLetterInspector creates a DeadLetterInspector.
func NewDeadLetterInspector(cycles domain.CycleStore, audit domain.AuditStore, notifier *notify.Notifier, logger *slog.Logger) *DeadLetterInspector {
	return &DeadLetterInspector{
		cycles:   cycles,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "dead_letter_inspector")),
	}
}

// Inspect lists the current dead-letter backlog, audits the count, and
// notifies operators when it is non-empty.
func (i *DeadLetterInspector) Inspect(ctx context.Context) (int, error) {
	list, err := i.cycles.ListDeadLetters(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: inspect dead letters: %w", err)
	}
	if len(list) == 0 {
		i.logger.DebugContext(ctx, "dead-letter queue empty")
		return 0, nil
	}

	i.logger.WarnContext(ctx, "dead-letter backlog present", slog.Int("count", len(list)))
	if i.audit != nil {
		if err := i.audit.Log(ctx, "dead_letter.inspected", map[string]any{
			"count": len(list),
		}); err != nil {
			i.logger.WarnContext(ctx, "audit log write failed", slog.String("error", err.Error()))
		}
	}

	msg := fmt.Sprintf("%d cycle(s) parked in dead-letter, oldest %s (%s)",
		len(list), list[0].ID, list[0].StartTime.Format("2006-01-02 15:04"))
	if err := i.notifier.Notify(ctx, notify.EventDeadLetter, "Dead-letter backlog", msg); err != nil {
		i.logger.WarnContext(ctx, "dead-letter summary alert failed", slog.String("error", err.Error()))
	}
	return len(list), nil
}
