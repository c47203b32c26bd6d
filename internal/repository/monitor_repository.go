package repository

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// MonitorRepository provides data access for the teacher live monitor.
// It combines Redis (live violation counters) and PostgreSQL (persisted violation events).
// pool may be nil when the server runs on the in-memory store.
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// GetLiveViolationCounts returns the escalated-warning counters kept in Redis for each student of a test.
func (r *MonitorRepository) GetLiveViolationCounts(ctx context.Context, testID uuid.UUID) (map[int]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, config.CacheKey.TestViolationsKey(testID.String())).Result()
	if err != nil {
		return nil, err
	}

	counts := make(map[int]int64, len(raw))
	for field, value := range raw {
		sid, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counts[sid] = n
	}
	return counts, nil
}

// GetRecordedViolationCounts returns the number of violation events persisted for each student of a test.
func (r *MonitorRepository) GetRecordedViolationCounts(ctx context.Context, testID uuid.UUID) (map[int]int64, error) {
	counts := make(map[int]int64)
	if r.pool == nil {
		return counts, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM violation_events
		 WHERE test_id = $1
		 GROUP BY student_id`,
		testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}
