package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
)

// archiveBatch bounds one store query. The archiver pages until a query
// returns fewer rows than this.
const archiveBatch = 5000

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy them implicitly; the archiver never needs the write side of the
// full domain interfaces.
// ---------------------------------------------------------------------------

// BetArchiveStore reads settled bets for archival.
type BetArchiveStore interface {
	ListSettledBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Bet, error)
}

// RoundArchiveStore reads resolved rounds for archival.
type RoundArchiveStore interface {
	ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Round, error)
}

// ArchiveImpl implements domain.Archiver: it queries the stores for settled
// records older than a cutoff, serialises them to JSONL and uploads the
// result. Pruning the archived bets and rounds from the primary store stays
// a separate, explicit step taken after the archive has been verified; only
// audit rows are pruned in place, they have no other consumer.
type ArchiveImpl struct {
	writer domain.BlobWriter
	bets   BetArchiveStore
	rounds RoundArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates an ArchiveImpl over the given writer and stores.
func NewArchiver(
	writer domain.BlobWriter,
	bets BetArchiveStore,
	rounds RoundArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		bets:   bets,
		rounds: rounds,
		audit:  audit,
	}
}

// ArchiveBets exports every settled bet last updated before the cutoff to
// archive/bets/YYYY-MM.jsonl and records the export in the audit log. The
// count of exported records is returned.
func (a *ArchiveImpl) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	bets, err := a.bets.ListSettledBefore(ctx, before, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets query: %w", err)
	}
	if len(bets) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(bets)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets marshal: %w", err)
	}

	path := archivePath("bets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive bets upload: %w", err)
	}

	count := int64(len(bets))
	if err := a.audit.Log(ctx, "archive.bets", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive bets audit log: %w", err)
	}
	return count, nil
}

// ArchiveRounds exports every resolved round last updated before the cutoff
// to archive/rounds/YYYY-MM.jsonl, wagers included by round reference in the
// round rows themselves.
func (a *ArchiveImpl) ArchiveRounds(ctx context.Context, before time.Time) (int64, error) {
	rounds, err := a.rounds.ListResolvedBefore(ctx, before, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds query: %w", err)
	}
	if len(rounds) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rounds)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds marshal: %w", err)
	}

	path := archivePath("rounds", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds upload: %w", err)
	}

	count := int64(len(rounds))
	if err := a.audit.Log(ctx, "archive.rounds", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive rounds audit log: %w", err)
	}
	return count, nil
}

// ArchiveAudit exports audit entries older than the cutoff and then prunes
// them from the store. The prune only runs after the upload succeeded, so a
// failed export never loses rows.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Limit: archiveBatch, Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	pruned, err := a.audit.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive audit prune: %w", err)
	}
	return pruned, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff:
//
//	archive/bets/2026-08.jsonl
//	archive/rounds/2026-08.jsonl
//	archive/audit/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
