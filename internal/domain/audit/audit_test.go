package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type recordingDB struct {
	execs []execCall
}

func (d *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (d *recordingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (d *recordingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestBuildBaseQueryAddsFiltersInOrder(t *testing.T) {
	query, args := buildBaseQuery("SELECT COUNT(1)", "org-1", Filter{Action: ActionRunCreate, EntityID: "run-1"})
	assert.Equal(t, "SELECT COUNT(1) FROM audit_events WHERE organization_id = $1 AND action = $2 AND entity_id = $3", query)
	assert.Equal(t, []any{"org-1", ActionRunCreate, "run-1"}, args)
}

func TestRecordPassesEventColumns(t *testing.T) {
	db := &recordingDB{}
	err := New(db).Record(context.Background(), Event{
		OrganizationID: "org-1",
		ActorID:        "user-1",
		Action:         ActionPeriodClose,
		EntityType:     "payroll_period",
		EntityID:       "period-1",
		RequestID:      "req-1",
		IP:             "203.0.113.9",
		After:          Payload(map[string]string{"status": "closed"}),
	})
	require.NoError(t, err)
	require.Len(t, db.execs, 1)
	args := db.execs[0].args
	assert.Equal(t, "org-1", args[0])
	assert.Equal(t, ActionPeriodClose, args[2])
	assert.JSONEq(t, `{"status":"closed"}`, string(args[5].([]byte)))
}

func TestPayloadNil(t *testing.T) {
	assert.Nil(t, Payload(nil))
	assert.Nil(t, Payload(func() {}))
}
