package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"hrpayroll/internal/platform/db"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// DefaultIdempotencyRetention bounds how long a stored response is replayed.
const DefaultIdempotencyRetention = 24 * time.Hour

// IdempotencyKey scopes a client supplied key to the caller and endpoint.
type IdempotencyKey struct {
	OrganizationID string
	UserID         string
	Endpoint       string
	Key            string
}

// IdempotencyStore remembers the response of a keyed mutation so a retried
// request replays it instead of executing twice. Entries older than
// Retention are treated as absent and may be overwritten.
type IdempotencyStore struct {
	db        db.DBTX
	Retention time.Duration
	now       func() time.Time
}

func NewIdempotencyStore(conn db.DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: conn, Retention: DefaultIdempotencyRetention, now: time.Now}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Check(ctx context.Context, key IdempotencyKey, requestHash string) (json.RawMessage, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, nil
	}
	var storedHash string
	var stored json.RawMessage
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, response_json
    FROM idempotency_keys
    WHERE organization_id = $1 AND user_id = $2 AND key = $3 AND endpoint = $4
      AND created_at > $5
  `, key.OrganizationID, key.UserID, key.Key, key.Endpoint, s.cutoff()).Scan(&storedHash, &stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if storedHash != requestHash {
		return nil, false, ErrIdempotencyConflict
	}
	return stored, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, key IdempotencyKey, requestHash string, response json.RawMessage) error {
	if s == nil || s.db == nil {
		return nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (organization_id, user_id, key, endpoint, request_hash, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (organization_id, user_id, key, endpoint)
    DO UPDATE SET request_hash = EXCLUDED.request_hash,
                  response_json = EXCLUDED.response_json,
                  created_at = now()
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
       OR idempotency_keys.created_at <= $7
  `, key.OrganizationID, key.UserID, key.Key, key.Endpoint, requestHash, response, s.cutoff())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

func (s *IdempotencyStore) cutoff() time.Time {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	retention := s.Retention
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}
	return now().Add(-retention)
}
