package sqlite

import (
	"context"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// ADMIN MAINTENANCE
// =============================================================================

// WipeOrder lists every table, children before parents.
var WipeOrder = []string{
	"attendance",
	"session_attendees",
	"course_students",
	"faces",
	"courses",
	"students",
	"sessions",
}

// WipeResult reports a completed wipe. VacuumErr is set when the tables were
// emptied but space reclamation failed afterwards.
type WipeResult struct {
	Tables    []string
	VacuumErr error
}

// Wipe deletes every row of every table inside one immediate transaction.
// Any failure rolls back the whole wipe. VACUUM runs after commit.
func (s *Store) Wipe(ctx context.Context) (*WipeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, entity.NewStorageError("begin wipe", err)
	}
	defer tx.Rollback()

	for _, table := range WipeOrder {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return nil, entity.NewStorageError("wipe "+table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, entity.NewStorageError("commit wipe", err)
	}

	result := &WipeResult{Tables: append([]string(nil), WipeOrder...)}
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		result.VacuumErr = err
	}
	return result, nil
}

// TableCounts returns the row count of every table in WipeOrder.
func (s *Store) TableCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(WipeOrder))
	for _, table := range WipeOrder {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, classify("count "+table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
