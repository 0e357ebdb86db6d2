package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kektech/marketd/internal/domain"
)

// SettlementRecord is the durable snapshot of a settled market: the frozen
// payout inputs, every position at settlement, and the full dispute history.
type SettlementRecord struct {
	Market     domain.Market          `json:"market"`
	Positions  []domain.Position      `json:"positions"`
	Disputes   []domain.DisputeRecord `json:"disputes"`
	ArchivedAt time.Time              `json:"archived_at"`
}

// Archiver uploads settlement records to object storage, one JSON document
// per market, partitioned by finalization month.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit}
}

// ArchiveSettlement serializes the settlement record and uploads it to
// settlements/YYYY-MM/{marketID}.json. The upload is recorded in the audit
// log.
func (a *Archiver) ArchiveSettlement(ctx context.Context, m domain.Market, positions []domain.Position, disputes []domain.DisputeRecord) error {
	record := SettlementRecord{
		Market:     m,
		Positions:  positions,
		Disputes:   disputes,
		ArchivedAt: time.Now().UTC(),
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal settlement %s: %w", m.ID, err)
	}

	path := settlementPath(m)
	if err := a.writer.Put(ctx, path, data, "application/json"); err != nil {
		return fmt.Errorf("s3blob: upload settlement %s: %w", m.ID, err)
	}

	if err := a.audit.Log(ctx, "settlement_archived", map[string]any{
		"market_id": m.ID,
		"path":      path,
		"positions": len(positions),
	}); err != nil {
		return fmt.Errorf("s3blob: settlement audit log %s: %w", m.ID, err)
	}
	return nil
}

// settlementPath partitions settlement objects by the month the market
// finalized, falling back to the last update for cancelled markets without
// a snapshot.
func settlementPath(m domain.Market) string {
	at := m.UpdatedAt
	if m.Snapshot != nil {
		at = m.Snapshot.FinalizedAt
	}
	return fmt.Sprintf("settlements/%s/%s.json", at.Format("2006-01"), m.ID)
}
