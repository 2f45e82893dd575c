package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openchargingcloud/wwcp/core/charging"
)

// sqlStore is shared by the SQLite and PostgreSQL backends. Timestamps are
// stored as unix nanoseconds so both dialects order them the same way.
type sqlStore struct {
	db *sql.DB
	// bind returns the placeholder of the n-th argument, starting at 1.
	bind func(n int) string
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func (s *sqlStore) migrate(ctx context.Context, idColumn string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS status_journal (
			id ` + idColumn + `,
			ts BIGINT NOT NULL,
			kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			change_type TEXT NOT NULL,
			property TEXT,
			old_value TEXT,
			new_value TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS status_journal_entity_ts ON status_journal (entity_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Append(ctx context.Context, e Entry) error {
	query := fmt.Sprintf(`INSERT INTO status_journal (ts, kind, entity_id, change_type, property, old_value, new_value)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		s.bind(1), s.bind(2), s.bind(3), s.bind(4), s.bind(5), s.bind(6), s.bind(7))
	_, err := s.db.ExecContext(ctx, query,
		e.Timestamp.UnixNano(), string(e.Kind), e.EntityID, string(e.Type), e.Property, nullable(e.Old), nullable(e.New))
	return err
}

func nullable(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}

// buildQuery renders q as a SELECT statement and its arguments.
func (s *sqlStore) buildQuery(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, s.bind(len(args))))
	}
	if q.EntityID != "" {
		add("entity_id = %s", q.EntityID)
	}
	if q.Kind != "" {
		add("kind = %s", string(q.Kind))
	}
	if q.Type != "" {
		add("change_type = %s", string(q.Type))
	}
	if !q.From.IsZero() {
		add("ts >= %s", q.From.UnixNano())
	}
	if !q.To.IsZero() {
		add("ts <= %s", q.To.UnixNano())
	}
	query := `SELECT ts, kind, entity_id, change_type, property, old_value, new_value FROM status_journal`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts, id"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT " + s.bind(len(args))
	}
	return query, args
}

func (s *sqlStore) Query(ctx context.Context, q Query) ([]Entry, error) {
	query, args := s.buildQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Entry
	for rows.Next() {
		var (
			e                Entry
			ts               int64
			kind, typ        string
			prop, oldV, newV sql.NullString
		)
		if err := rows.Scan(&ts, &kind, &e.EntityID, &typ, &prop, &oldV, &newV); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Kind = charging.Kind(kind)
		e.Type = charging.ChangeType(typ)
		e.Property = prop.String
		if oldV.Valid {
			e.Old = []byte(oldV.String)
		}
		if newV.Valid {
			e.New = []byte(newV.String)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *sqlStore) Close() error { return s.db.Close() }
