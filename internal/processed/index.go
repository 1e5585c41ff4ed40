package processed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trawler/internal/storage"
)

// Index records and looks up processed external ids in the shared database.
type Index struct {
	db *storage.DB
}

// NewIndex builds a processed-items index on the shared database.
func NewIndex(db *storage.DB) *Index {
	return &Index{db: db}
}

// Contains reports whether an external id has already been processed.
func (i *Index) Contains(ctx context.Context, externalID string) (bool, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return false, nil
	}
	var count int
	row := i.db.Handle().QueryRowContext(ctx, `SELECT COUNT(1) FROM processed_items WHERE external_id = ?`, externalID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check processed item: %w", err)
	}
	return count > 0, nil
}

// Record stores a processed external id. Re-recording an id updates its
// result reference instead of failing.
func (i *Index) Record(ctx context.Context, externalID, resultRef string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return fmt.Errorf("external id is required")
	}
	if err := i.db.ExecRetryNoResult(
		ctx,
		`INSERT INTO processed_items (external_id, result_ref, processed_at)
         VALUES (?, ?, ?)
         ON CONFLICT (external_id) DO UPDATE SET result_ref = excluded.result_ref`,
		externalID,
		storage.NullableString(strings.TrimSpace(resultRef)),
		storage.FormatTime(time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("record processed item: %w", err)
	}
	return nil
}
