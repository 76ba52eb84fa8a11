package store

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"webhook-recorder/internal/calls"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	insertCallSQL  = regexp.QuoteMeta("INSERT INTO webhook_calls (id, service, created_at, document, raw_body)")
	findAllCallSQL = `SELECT document, raw_body\s+FROM webhook_calls\s+WHERE service = \$1\s+ORDER BY seq`
	findOneCallSQL = `SELECT document, raw_body\s+FROM webhook_calls\s+WHERE service = \$1 AND id = \$2`
)

func newMockPostgres(t *testing.T) (*Postgres, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db), db, mock
}

// jsonbDocument renders rec the way it comes back out of a JSONB column:
// same values, keys reordered.
func jsonbDocument(t *testing.T, rec calls.Record) []byte {
	t.Helper()
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic map[string]any
	require.NoError(t, dec.Decode(&generic))

	out, err := json.Marshal(generic)
	require.NoError(t, err)
	return out
}

// capturedID matches the generated id argument and keeps it for later checks.
type capturedID struct{ id *string }

func (c capturedID) Match(v driver.Value) bool {
	s, ok := v.(string)
	*c.id = s
	return ok && s != ""
}

func TestPostgres_OpenPingFailure(t *testing.T) {
	pg, db, mock := newMockPostgres(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	called := false
	err := WithSession(context.Background(), pg, func(Session) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.False(t, called)
	assert.Zero(t, db.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertAssignsID(t *testing.T) {
	pg, db, mock := newMockPostgres(t)
	ctx := context.Background()

	captured := []byte(`{"zeta":1, "alpha":2.0}`)
	rec := sampleRecord("github")
	rec.Body = calls.ParseBody("application/json", captured)

	var sentID string
	mock.ExpectPing()
	mock.ExpectExec(insertCallSQL).
		WithArgs(capturedID{&sentID}, "github", rec.CreatedAt, sqlmock.AnyArg(), captured).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var id string
	err := WithSession(ctx, pg, func(s Session) error {
		var ierr error
		id, ierr = s.Insert(ctx, rec)
		return ierr
	})
	require.NoError(t, err)

	assert.Equal(t, sentID, id)
	_, perr := uuid.Parse(id)
	assert.NoError(t, perr)
	assert.Zero(t, db.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertFailures(t *testing.T) {
	pg, _, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectPing()
	mock.ExpectExec(insertCallSQL).WillReturnError(errors.New("disk full"))

	err := WithSession(ctx, pg, func(s Session) error {
		_, ierr := s.Insert(ctx, calls.Record{Service: "github"})
		assert.ErrorIs(t, ierr, ErrWriteFailed, "record without createdAt must be rejected before the write")

		_, ierr = s.Insert(ctx, sampleRecord("github"))
		return ierr
	})
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindAllInInsertionOrder(t *testing.T) {
	pg, db, mock := newMockPostgres(t)
	ctx := context.Background()

	captured := []byte("{\"zeta\":1, \"alpha\":2.0,\"big\":12345678901234567890}\n")
	first := sampleRecord("github")
	first.ID = "first"
	first.Body = calls.ParseBody("application/json", captured)

	second := sampleRecord("github")
	second.ID = "second"
	second.Body = calls.JSONBody([]byte(`{"event":"push"}`))

	mock.ExpectPing()
	mock.ExpectQuery(findAllCallSQL).
		WithArgs("github").
		WillReturnRows(sqlmock.NewRows([]string{"document", "raw_body"}).
			AddRow(jsonbDocument(t, first), captured).
			AddRow(jsonbDocument(t, second), nil))

	var got []calls.Record
	err := WithSession(ctx, pg, func(s Session) error {
		var ferr error
		got, ferr = s.FindAll(ctx, "github")
		return ferr
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "first", got[0].ID)
	assert.Equal(t, "second", got[1].ID)
	assert.Equal(t, []string{"a", "b"}, got[0].Headers["x-dup"])
	assert.True(t, first.CreatedAt.Equal(got[0].CreatedAt))

	assert.Equal(t, string(bytes.TrimSpace(captured)), string(got[0].Body.Value))
	replay, err := got[0].Body.Payload()
	require.NoError(t, err)
	assert.Equal(t, captured, replay)

	// Rows written before raw_body existed fall back to the document.
	assert.Equal(t, calls.BodyJSON, got[1].Body.Kind)
	assert.JSONEq(t, `{"event":"push"}`, string(got[1].Body.Value))

	assert.Zero(t, db.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindAllEmptyService(t *testing.T) {
	pg, _, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectPing()
	mock.ExpectQuery(findAllCallSQL).
		WithArgs("quiet").
		WillReturnRows(sqlmock.NewRows([]string{"document", "raw_body"}))

	err := WithSession(ctx, pg, func(s Session) error {
		got, ferr := s.FindAll(ctx, "quiet")
		assert.NotNil(t, got)
		assert.Empty(t, got)
		return ferr
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindOne(t *testing.T) {
	ctx := context.Background()
	cols := []string{"document", "raw_body"}

	t.Run("found", func(t *testing.T) {
		pg, _, mock := newMockPostgres(t)
		rec := sampleRecord("github")
		rec.ID = "abc"
		rec.Body = calls.ParseBody("text/plain", []byte("caf\xe9"))

		mock.ExpectPing()
		mock.ExpectQuery(findOneCallSQL).
			WithArgs("github", "abc").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(jsonbDocument(t, rec), rec.Body.Raw))

		err := WithSession(ctx, pg, func(s Session) error {
			got, found, ferr := s.FindOne(ctx, "github", "abc")
			require.NoError(t, ferr)
			assert.True(t, found)
			assert.Equal(t, "abc", got.ID)
			assert.Equal(t, calls.BodyText, got.Body.Kind)
			replay, perr := got.Body.Payload()
			require.NoError(t, perr)
			assert.Equal(t, "caf\xe9", string(replay))
			return nil
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing is not an error", func(t *testing.T) {
		pg, _, mock := newMockPostgres(t)
		mock.ExpectPing()
		mock.ExpectQuery(findOneCallSQL).
			WithArgs("github", "nope").
			WillReturnRows(sqlmock.NewRows(cols))

		err := WithSession(ctx, pg, func(s Session) error {
			_, found, ferr := s.FindOne(ctx, "github", "nope")
			assert.False(t, found)
			return ferr
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		pg, _, mock := newMockPostgres(t)
		mock.ExpectPing()
		mock.ExpectQuery(findOneCallSQL).WillReturnError(errors.New("relation does not exist"))

		err := WithSession(ctx, pg, func(s Session) error {
			_, found, ferr := s.FindOne(ctx, "github", "abc")
			assert.False(t, found)
			return ferr
		})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrConnectionFailed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("undecodable document", func(t *testing.T) {
		pg, _, mock := newMockPostgres(t)
		mock.ExpectPing()
		mock.ExpectQuery(findOneCallSQL).
			WillReturnRows(sqlmock.NewRows(cols).AddRow([]byte(`{"bodyKind":"blob","body":1}`), nil))

		err := WithSession(ctx, pg, func(s Session) error {
			_, _, ferr := s.FindOne(ctx, "github", "abc")
			return ferr
		})
		assert.ErrorContains(t, err, "decode record")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgres_SessionReleasesConnOnce(t *testing.T) {
	pg, db, mock := newMockPostgres(t)
	ctx := context.Background()

	mock.ExpectPing()
	sess, err := pg.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, db.Stats().InUse)

	require.NoError(t, sess.Close(ctx))
	assert.Zero(t, db.Stats().InUse)
	assert.ErrorIs(t, sess.Close(ctx), sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_EnsureSchema(t *testing.T) {
	pg, _, mock := newMockPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS webhook_calls")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ADD COLUMN IF NOT EXISTS raw_body BYTEA")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS webhook_calls_service_seq_idx")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, pg.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
