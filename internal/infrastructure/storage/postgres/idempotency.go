package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"stocktally/internal/core/apperror"
	"stocktally/pkg/logger"
)

// Idempotency record statuses.
const (
	idempotencyStatusPending   = "pending"
	idempotencyStatusCompleted = "completed"
	idempotencyStatusFailed    = "failed"
)

// A pending record older than this is presumed abandoned (crashed request)
// and may be reclaimed by a retry.
const idempotencyStaleAfter = time.Minute

// IdempotencyRecord is one row in sys_idempotency.
type IdempotencyRecord struct {
	Key          string    `db:"key"`
	UserID       string    `db:"user_id"`
	Operation    string    `db:"operation"`
	RequestHash  string    `db:"request_hash"`
	Status       string    `db:"status"`
	ResponseCode int       `db:"response_code"`
	ContentType  string    `db:"content_type"`
	ResponseBody []byte    `db:"response_body"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
}

// Replay is a stored response returned for a repeated key.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore makes mutating requests safe to retry. The first request
// with a key claims it; a retry with the same key and payload either waits
// out a pending record or replays the stored response.
type IdempotencyStore struct {
	txManager *TxManager
	ttl       time.Duration
}

// NewIdempotencyStore creates a store with the given record TTL.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{txManager: txManager, ttl: ttl}
}

// AcquireKey attempts to claim the key for this request. Returns (nil, nil)
// when the caller now owns the key and should execute the operation. Returns
// a Replay when a completed response is stored. Returns an error when the key
// is pending elsewhere or was used with a different payload.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*Replay, error) {
	now := time.Now().UTC()
	q := s.txManager.GetQuerier(ctx)

	var rec IdempotencyRecord
	err := q.QueryRow(ctx, `
		INSERT INTO sys_idempotency (key, user_id, operation, request_hash, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET key = sys_idempotency.key
		RETURNING key, user_id, operation, request_hash, status,
		          COALESCE(response_code, 0), COALESCE(content_type, ''),
		          COALESCE(response_body, ''::bytea), created_at, expires_at`,
		key, userID, operation, requestHash, idempotencyStatusPending, now, now.Add(s.ttl),
	).Scan(&rec.Key, &rec.UserID, &rec.Operation, &rec.RequestHash, &rec.Status,
		&rec.ResponseCode, &rec.ContentType, &rec.ResponseBody, &rec.CreatedAt, &rec.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}

	// Freshly inserted row: the no-op upsert returns our own values.
	if rec.Status == idempotencyStatusPending && rec.CreatedAt.Equal(now) {
		return nil, nil
	}

	if rec.RequestHash != requestHash {
		return nil, apperror.NewConflict("idempotency key reused with a different request").
			WithDetail("key", key)
	}

	switch rec.Status {
	case idempotencyStatusCompleted:
		return &Replay{StatusCode: rec.ResponseCode, ContentType: rec.ContentType, Body: rec.ResponseBody}, nil
	case idempotencyStatusFailed:
		// The previous attempt failed terminally; let the retry run.
		return nil, s.reclaim(ctx, key, userID, operation, requestHash)
	default:
		if now.Sub(rec.CreatedAt) > idempotencyStaleAfter {
			logger.Warn(ctx, "reclaiming stale pending idempotency key", "key", key)
			return nil, s.reclaim(ctx, key, userID, operation, requestHash)
		}
		return nil, apperror.NewIdempotencyConflict(key)
	}
}

func (s *IdempotencyStore) reclaim(ctx context.Context, key, userID, operation, requestHash string) error {
	now := time.Now().UTC()
	q := s.txManager.GetQuerier(ctx)
	_, err := q.Exec(ctx, `
		UPDATE sys_idempotency
		SET user_id = $2, operation = $3, request_hash = $4, status = $5,
		    response_code = NULL, content_type = NULL, response_body = NULL,
		    created_at = $6, expires_at = $7
		WHERE key = $1`,
		key, userID, operation, requestHash, idempotencyStatusPending, now, now.Add(s.ttl),
	)
	if err != nil {
		return fmt.Errorf("reclaim idempotency key: %w", err)
	}
	return nil
}

// CompleteKey stores the successful response for replay.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotencyStatusCompleted, statusCode, contentType, response)
}

// FailKey stores the failure response and marks the key failed so a retry
// can run the operation again.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	return s.finish(ctx, key, idempotencyStatusFailed, statusCode, contentType, response)
}

func (s *IdempotencyStore) finish(ctx context.Context, key, status string, statusCode int, contentType string, response any) error {
	var body []byte
	if response != nil {
		var err error
		body, err = json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshal idempotency response: %w", err)
		}
	}

	q := s.txManager.GetQuerier(ctx)
	_, err := q.Exec(ctx, `
		UPDATE sys_idempotency
		SET status = $2, response_code = $3, content_type = $4, response_body = $5
		WHERE key = $1`,
		key, status, statusCode, contentType, body,
	)
	if err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}
	return nil
}

// Get returns the record for a key, or nil when absent.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	q := s.txManager.GetQuerier(ctx)
	var rec IdempotencyRecord
	err := q.QueryRow(ctx, `
		SELECT key, user_id, operation, request_hash, status,
		       COALESCE(response_code, 0), COALESCE(content_type, ''),
		       COALESCE(response_body, ''::bytea), created_at, expires_at
		FROM sys_idempotency WHERE key = $1`, key,
	).Scan(&rec.Key, &rec.UserID, &rec.Operation, &rec.RequestHash, &rec.Status,
		&rec.ResponseCode, &rec.ContentType, &rec.ResponseBody, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	return &rec, nil
}

// CleanupExpired removes records past their TTL. Run periodically.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	q := s.txManager.GetQuerier(ctx)
	tag, err := q.Exec(ctx, `DELETE FROM sys_idempotency WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
