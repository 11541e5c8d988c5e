package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from every table. It is exported so the
// postgres_test package can reset state between integration tests.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE media_records, object_sightings, vector_records")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
