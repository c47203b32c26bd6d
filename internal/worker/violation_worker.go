package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Redis BLPOP resolution is one second
)

var violationColumns = []string{"session_id", "test_id", "student_id", "kind", "count", "raised_at"}

// DB is the part of *pgxpool.Pool the worker writes through.
type DB interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ViolationWorker drains the violation queue into violation_events in batches.
type ViolationWorker struct {
	db           DB
	rdb          *redis.Client
	log          zerolog.Logger
	requeueDelay time.Duration
}

func NewViolationWorker(db DB, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		db:           db,
		rdb:          rdb,
		log:          log.With().Str("component", "violation_worker").Logger(),
		requeueDelay: 2 * time.Second,
	}
}

// Start blocks until ctx is cancelled, then flushes what it holds.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]model.ViolationEvent, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flush(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleep(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var ev model.ViolationEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// a malformed payload can never succeed
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed violation event")
			continue
		}
		buffer = append(buffer, ev)
	}
}

// flush tries one CopyFrom, then row-by-row inserts, then requeues what still failed.
func (w *ViolationWorker) flush(ctx context.Context, batch []model.ViolationEvent) {
	rows, err := toRows(batch)
	if err == nil {
		_, err = w.db.CopyFrom(ctx, pgx.Identifier{"violation_events"}, violationColumns, pgx.CopyFromRows(rows))
		if err == nil {
			w.log.Debug().Int("count", len(batch)).Msg("Violation events persisted")
			return
		}
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.ViolationEvent) {
	var failed []model.ViolationEvent

	for _, ev := range batch {
		row, err := toRow(ev)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", ev.SessionID).Msg("Dropping violation event with invalid id")
			continue
		}

		_, err = w.db.Exec(ctx,
			`INSERT INTO violation_events (session_id, test_id, student_id, kind, count, raised_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			row...,
		)
		if err != nil {
			w.log.Error().Err(err).Int("student_id", ev.StudentID).Msg("Insert failed, requeueing")
			failed = append(failed, ev)
		}
	}

	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, events []model.ViolationEvent) {
	// the caller's ctx may already be cancelled on shutdown
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	pipe := w.rdb.Pipeline()
	for _, ev := range events {
		data, _ := json.Marshal(ev)
		pipe.RPush(pushCtx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(pushCtx); err != nil {
		w.log.Error().Err(err).Int("count", len(events)).Msg("CRITICAL: failed to requeue violation events, data lost")
		return
	}
	w.log.Info().Int("count", len(events)).Msg("Requeued failed violation events")
	sleep(ctx, w.requeueDelay)
}

func (w *ViolationWorker) shutdown(buffer []model.ViolationEvent) {
	w.log.Info().Int("pending", len(buffer)).Msg("Worker stopping, flushing remaining buffer")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flush(ctx, buffer)
	}
}

func toRows(batch []model.ViolationEvent) ([][]any, error) {
	rows := make([][]any, 0, len(batch))
	for _, ev := range batch {
		row, err := toRow(ev)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toRow(ev model.ViolationEvent) ([]any, error) {
	sessionID, err := uuid.Parse(ev.SessionID)
	if err != nil {
		return nil, err
	}
	testID, err := uuid.Parse(ev.TestID)
	if err != nil {
		return nil, err
	}
	return []any{sessionID, testID, ev.StudentID, ev.Kind, ev.Count, time.Unix(ev.RaisedAt, 0).UTC()}, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
