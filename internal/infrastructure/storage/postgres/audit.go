package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"stocktally/internal/core/id"
	"stocktally/internal/core/security"
	"stocktally/pkg/logger"
)

// Entity types recorded in the audit log.
const (
	AuditEntityBatch       = "stock_batch"
	AuditEntityAdjustment  = "adjustment"
	AuditEntityTransfer    = "transfer"
	AuditEntityReservation = "reservation"
	AuditEntitySale        = "sale"
)

// Actions recorded in the audit log.
const (
	AuditActionCreate   = "create"
	AuditActionApply    = "apply"
	AuditActionDispatch = "dispatch"
	AuditActionComplete = "complete"
	AuditActionCancel   = "cancel"
	AuditActionRelease  = "release"
	AuditActionCommit   = "commit"
)

// Payloads above this size are zstd-compressed before storage.
const auditCompressThreshold = 10 * 1024

// AuditEntry is a single record in the append-only audit log.
type AuditEntry struct {
	ID         id.ID     `db:"id"`
	EntityType string    `db:"entity_type"`
	EntityID   string    `db:"entity_id"`
	Action     string    `db:"action"`
	UserID     string    `db:"user_id"`
	Payload    []byte    `db:"payload"`
	Compressed bool      `db:"compressed"`
	CreatedAt  time.Time `db:"created_at"`
}

// AuditStore writes entity snapshots to sys_audit_log. Payloads are JSON,
// compressed when large. The TxManager comes from the request context, so a
// single store serves every tenant and writes join the ambient transaction
// when one is open.
type AuditStore struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewAuditStore creates an audit store.
func NewAuditStore() (*AuditStore, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditStore{encoder: encoder, decoder: decoder}, nil
}

// Record writes one audit entry. The payload is marshalled to JSON; the user
// is taken from the request scope when present.
func (s *AuditStore) Record(ctx context.Context, entityType, entityID, action string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	compressed := false
	if len(body) > auditCompressThreshold {
		body = s.encoder.EncodeAll(body, nil)
		compressed = true
	}

	userID := "system"
	if scope := security.ScopeFromContext(ctx); scope != nil {
		userID = scope.UserID
	}

	q := MustGetTxManager(ctx).GetQuerier(ctx)
	_, err = q.Exec(ctx, `
		INSERT INTO sys_audit_log (id, entity_type, entity_id, action, user_id, payload, compressed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id.New(), entityType, entityID, action, userID, body, compressed, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	logger.Debug(ctx, "audit entry recorded",
		"entity_type", entityType,
		"entity_id", entityID,
		"action", action,
	)
	return nil
}

// History returns entries for one entity, newest first.
func (s *AuditStore) History(ctx context.Context, entityType, entityID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := MustGetTxManager(ctx).GetQuerier(ctx)
	rows, err := q.Query(ctx, `
		SELECT id, entity_type, entity_id, action, user_id, payload, compressed, created_at
		FROM sys_audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		entityType, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.UserID, &e.Payload, &e.Compressed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.Compressed {
			decoded, err := s.decoder.DecodeAll(e.Payload, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit payload %s: %w", e.ID, err)
			}
			e.Payload = decoded
			e.Compressed = false
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases compressor resources.
func (s *AuditStore) Close() {
	s.encoder.Close()
	s.decoder.Close()
}
