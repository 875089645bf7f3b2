package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yunseo-park/kimpbot/internal/domain"
)

// CycleArchiveStore is the narrow read surface the archiver needs from the
// cycle store: only terminal cycles are ever archived.
type CycleArchiveStore interface {
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Cycle, error)
}

// PortfolioArchiveStore is the narrow read surface over the portfolio
// ledger.
type PortfolioArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.PortfolioSnapshot, error)
}

// ArchiveImpl implements domain.Archiver: it serializes old terminal cycles
// and portfolio snapshots to JSONL and uploads them to cold storage.
// Archived rows are NOT deleted from the primary store; deletion is a
// separate explicit step run after the archive is verified.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	cycles    CycleArchiveStore
	portfolio PortfolioArchiveStore
	audit     domain.AuditStore
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, cycles CycleArchiveStore, portfolio PortfolioArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		cycles:    cycles,
		portfolio: portfolio,
		audit:     audit,
	}
}

// ArchiveCycles uploads all terminal cycles that ended before the cutoff to
// archive/cycles/YYYY-MM.jsonl and records the event in the audit log.
func (a *ArchiveImpl) ArchiveCycles(ctx context.Context, before time.Time) (int64, error) {
	cycles, err := a.cycles.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive cycles query: %w", err)
	}
	if len(cycles) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(cycles)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive cycles marshal: %w", err)
	}

	path := archivePath("cycles", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive cycles upload: %w", err)
	}

	count := int64(len(cycles))
	a.auditLog(ctx, "archive.cycles", path, count, before)
	return count, nil
}

// ArchivePortfolio uploads portfolio snapshots recorded before the cutoff
// to archive/portfolio/YYYY-MM.jsonl.
func (a *ArchiveImpl) ArchivePortfolio(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.portfolio.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive portfolio query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive portfolio marshal: %w", err)
	}

	path := archivePath("portfolio", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive portfolio upload: %w", err)
	}

	count := int64(len(snaps))
	a.auditLog(ctx, "archive.portfolio", path, count, before)
	return count, nil
}

func (a *ArchiveImpl) auditLog(ctx context.Context, event, path string, count int64, before time.Time) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Log(ctx, event, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	})
}

// marshalJSONL renders a slice as newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
