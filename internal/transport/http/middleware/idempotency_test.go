package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestRequestHashDeterministic(t *testing.T) {
	hash1 := RequestHash([]byte("payload"))
	hash2 := RequestHash([]byte("payload"))
	hash3 := RequestHash([]byte("other"))

	if hash1 != hash2 {
		t.Fatal("expected deterministic hash")
	}
	if hash1 == hash3 {
		t.Fatal("expected different hash for different payload")
	}
}

var runKey = IdempotencyKey{OrganizationID: "org", UserID: "u1", Endpoint: "payroll.run", Key: "k1"}

type idemRow struct {
	hash     string
	response json.RawMessage
	err      error
}

func (r idemRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.hash
	*dest[1].(*json.RawMessage) = r.response
	return nil
}

type idemDB struct {
	row      idemRow
	affected int64
	args     []any
}

func (d *idemDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	d.args = args
	if d.affected == 0 {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (d *idemDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (d *idemDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	d.args = args
	return d.row
}

func TestIdempotencyCheck(t *testing.T) {
	ctx := context.Background()
	hash := RequestHash([]byte(`{"notes":"jan"}`))

	missing := NewIdempotencyStore(&idemDB{row: idemRow{err: pgx.ErrNoRows}})
	if _, found, err := missing.Check(ctx, runKey, hash); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}

	stored := NewIdempotencyStore(&idemDB{row: idemRow{hash: hash, response: json.RawMessage(`{"id":"r1"}`)}})
	body, found, err := stored.Check(ctx, runKey, hash)
	if err != nil || !found {
		t.Fatalf("expected replay, got found=%v err=%v", found, err)
	}
	if string(body) != `{"id":"r1"}` {
		t.Fatalf("unexpected stored body %s", body)
	}

	if _, _, err := stored.Check(ctx, runKey, RequestHash([]byte("other"))); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestIdempotencySaveConflict(t *testing.T) {
	ctx := context.Background()
	if err := NewIdempotencyStore(&idemDB{affected: 1}).Save(ctx, runKey, "h", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := NewIdempotencyStore(&idemDB{}).Save(ctx, runKey, "h", json.RawMessage(`{}`)); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestNilIdempotencyStoreIsNoop(t *testing.T) {
	var store *IdempotencyStore
	if _, found, err := store.Check(context.Background(), runKey, "h"); err != nil || found {
		t.Fatalf("expected noop, got found=%v err=%v", found, err)
	}
}

func TestIdempotencyCheckOnlyMatchesRetainedEntries(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	conn := &idemDB{row: idemRow{err: pgx.ErrNoRows}}
	store := NewIdempotencyStore(conn)
	store.Retention = time.Hour
	store.now = func() time.Time { return now }

	if _, found, err := store.Check(context.Background(), runKey, "h"); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	if len(conn.args) != 5 {
		t.Fatalf("expected 5 query args, got %d", len(conn.args))
	}
	if cutoff := conn.args[4].(time.Time); !cutoff.Equal(now.Add(-time.Hour)) {
		t.Fatalf("unexpected cutoff %v", cutoff)
	}
}
