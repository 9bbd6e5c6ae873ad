package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salon-leads/internal/activity"
	"salon-leads/pkg/utils"
)

// Dialect selects placeholder style for the SQL store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

func (d Dialect) rebind(q string) string {
	if d == DialectPostgres {
		return utils.RebindDollar(q)
	}
	return q
}

// NOTE: This store assumes the tables from migrations/ exist (see Migrate).
//
// Conditional updates are a single UPDATE ... WHERE id = ? AND <expectations>. On postgres
// (READ COMMITTED) a concurrent writer blocks on the row lock and re-evaluates the WHERE
// clause against the committed row, so at most one of two racing claims matches. SQLite
// serializes all writers.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("leads: db is required")
	}
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("leads: unsupported dialect %q", dialect)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

const leadColumns = `id, name, email, phone, message, source, status, assigned_to, assigned_by, assigned_at,
preferred_location, preferred_service, response_time_seconds, first_service_revenue, activity_count,
created_at, updated_at`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(r rowScanner) (Lead, error) {
	var (
		l                                         Lead
		email, phone, message                     sql.NullString
		assignedTo, assignedBy, location, service sql.NullString
		assignedAt, responseTime                  sql.NullInt64
		createdAt, updatedAt                      int64
	)
	if err := r.Scan(
		&l.ID,
		&l.Name,
		&email,
		&phone,
		&message,
		&l.Source,
		&l.Status,
		&assignedTo,
		&assignedBy,
		&assignedAt,
		&location,
		&service,
		&responseTime,
		&l.FirstServiceRevenue,
		&l.ActivityCount,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Lead{}, err
	}
	l.Email = stringPtr(email)
	l.Phone = stringPtr(phone)
	l.Message = stringPtr(message)
	l.AssignedTo = stringPtr(assignedTo)
	l.AssignedBy = stringPtr(assignedBy)
	l.PreferredLocation = stringPtr(location)
	l.PreferredService = stringPtr(service)
	if assignedAt.Valid {
		t := fromMicros(assignedAt.Int64)
		l.AssignedAt = &t
	}
	if responseTime.Valid {
		v := responseTime.Int64
		l.ResponseTimeSeconds = &v
	}
	l.CreatedAt = fromMicros(createdAt)
	l.UpdatedAt = fromMicros(updatedAt)
	return l, nil
}

func (s *SQLStore) getLead(ctx context.Context, q queryer, id string) (Lead, error) {
	row := q.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+leadColumns+` FROM leads WHERE id = ?`), id)
	l, err := scanLead(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("select lead: %w", err)
	}
	return l, nil
}

func (s *SQLStore) Create(ctx context.Context, l Lead) (Lead, error) {
	if l.ID == "" {
		return Lead{}, errors.New("leads: id required")
	}
	const q = `
INSERT INTO leads (
  id, name, email, phone, message, source, status, assigned_to, assigned_by, assigned_at,
  preferred_location, preferred_service, response_time_seconds, first_service_revenue, activity_count,
  created_at, updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(q),
		l.ID,
		l.Name,
		nullString(l.Email),
		nullString(l.Phone),
		nullString(l.Message),
		string(l.Source),
		string(l.Status),
		nullString(l.AssignedTo),
		nullString(l.AssignedBy),
		nullMicros(l.AssignedAt),
		nullString(l.PreferredLocation),
		nullString(l.PreferredService),
		nullInt64(l.ResponseTimeSeconds),
		l.FirstServiceRevenue,
		l.ActivityCount,
		toMicros(l.CreatedAt),
		toMicros(l.UpdatedAt),
	)
	if err != nil {
		return Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return s.Get(ctx, l.ID)
}

func (s *SQLStore) Get(ctx context.Context, id string) (Lead, error) {
	return s.getLead(ctx, s.db, id)
}

func (s *SQLStore) Update(ctx context.Context, id string, p Patch, exp Expectation, entry *activity.Entry) (Lead, error) {
	var out Lead
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		set, args := patchClause(p, entry != nil)
		where, wargs := expectationClause(exp)

		q := `UPDATE leads SET ` + set + ` WHERE id = ?` + where
		args = append(args, id)
		args = append(args, wargs...)

		res, err := tx.ExecContext(ctx, s.dialect.rebind(q), args...)
		if err != nil {
			return fmt.Errorf("update lead: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update lead rows: %w", err)
		}
		if n == 0 {
			cur, err := s.getLead(ctx, tx, id)
			if err != nil {
				return err
			}
			return &ConflictError{Current: cur}
		}

		l, err := s.getLead(ctx, tx, id)
		if err != nil {
			return err
		}
		if entry != nil {
			if _, err := s.insertEntry(ctx, tx, id, *entry, l.ActivityCount); err != nil {
				return err
			}
		}
		out = l
		return nil
	})
	if err != nil {
		return Lead{}, err
	}
	return out, nil
}

func (s *SQLStore) AppendActivity(ctx context.Context, id string, e activity.Entry) (activity.Entry, error) {
	var out activity.Entry
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.dialect.rebind(`UPDATE leads SET activity_count = activity_count + 1 WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("bump activity count: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("bump activity count rows: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}

		var seq int64
		if err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT activity_count FROM leads WHERE id = ?`), id).Scan(&seq); err != nil {
			return fmt.Errorf("select activity count: %w", err)
		}
		out, err = s.insertEntry(ctx, tx, id, e, seq)
		return err
	})
	if err != nil {
		return activity.Entry{}, err
	}
	return out, nil
}

func (s *SQLStore) insertEntry(ctx context.Context, tx *sql.Tx, leadID string, e activity.Entry, seq int64) (activity.Entry, error) {
	e.LeadID = leadID
	e.Seq = seq
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)

	const q = `
INSERT INTO lead_activity (id, lead_id, seq, action, notes, performer_id, created_at)
VALUES (?,?,?,?,?,?,?)
`
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(q),
		e.ID,
		e.LeadID,
		e.Seq,
		string(e.Action),
		nullString(e.Notes),
		nullString(e.PerformerID),
		toMicros(e.CreatedAt),
	); err != nil {
		return activity.Entry{}, fmt.Errorf("insert activity: %w", err)
	}
	return e, nil
}

func (s *SQLStore) Activity(ctx context.Context, id string) ([]activity.Entry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	const q = `
SELECT id, lead_id, seq, action, notes, performer_id, created_at
FROM lead_activity
WHERE lead_id = ?
ORDER BY created_at ASC, seq ASC
`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), id)
	if err != nil {
		return nil, fmt.Errorf("select activity: %w", err)
	}
	defer rows.Close()

	out := make([]activity.Entry, 0)
	for rows.Next() {
		var (
			e                  activity.Entry
			notes, performerID sql.NullString
			createdAt          int64
		)
		if err := rows.Scan(&e.ID, &e.LeadID, &e.Seq, &e.Action, &notes, &performerID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.Notes = stringPtr(notes)
		e.PerformerID = stringPtr(performerID)
		e.CreatedAt = fromMicros(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]Lead, error) {
	f = f.Normalize()
	where, args := filterClause(f)
	q := `SELECT ` + leadColumns + ` FROM leads` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	out := make([]Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Count(ctx context.Context, f Filter) (int, error) {
	f = f.Normalize()
	where, args := filterClause(f)
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(1) FROM leads`+where), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

// patchClause renders the SET list. UpdatedAt is always written.
func patchClause(p Patch, bumpActivity bool) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	} else if p.LeaveNew != nil {
		// Every right-hand side sees the row as it was before this UPDATE.
		at := p.LeaveNew.At.Unix()
		sets = append(sets, "status = CASE WHEN status = ? THEN ? ELSE status END")
		args = append(args, string(StatusNew), string(p.LeaveNew.To))
		if p.ResponseTimeSeconds == nil {
			sets = append(sets, "response_time_seconds = CASE WHEN status = ? AND response_time_seconds IS NULL "+
				"THEN (CASE WHEN ? > created_at / 1000000 THEN ? - created_at / 1000000 ELSE 0 END) "+
				"ELSE response_time_seconds END")
			args = append(args, string(StatusNew), at, at)
		}
	}
	if p.AssignedTo != nil {
		add("assigned_to", *p.AssignedTo)
	}
	if p.AssignedBy != nil {
		add("assigned_by", *p.AssignedBy)
	}
	if p.AssignedAt != nil {
		add("assigned_at", toMicros(*p.AssignedAt))
	}
	if p.ResponseTimeSeconds != nil {
		add("response_time_seconds", *p.ResponseTimeSeconds)
	}
	if p.FirstServiceRevenue != nil {
		add("first_service_revenue", p.FirstServiceRevenue.String())
	}
	add("updated_at", toMicros(p.UpdatedAt))
	if bumpActivity {
		sets = append(sets, "activity_count = activity_count + 1")
	}
	return strings.Join(sets, ", "), args
}

// expectationClause renders the compare half of the conditional update as AND-ed predicates.
func expectationClause(e Expectation) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	if e.Status != nil {
		b.WriteString(" AND status = ?")
		args = append(args, string(*e.Status))
	}
	if e.Unassigned {
		b.WriteString(" AND assigned_to IS NULL")
	}
	if e.Assignee != nil {
		b.WriteString(" AND assigned_to = ?")
		args = append(args, *e.Assignee)
	}
	if e.NotTerminal {
		b.WriteString(" AND status NOT IN (?, ?)")
		args = append(args, string(StatusConverted), string(StatusLost))
	}
	if e.RevenueUnset {
		b.WriteString(" AND first_service_revenue IS NULL")
	}
	return b.String(), args
}

// filterClause is the SQL form of Filter.Match.
func filterClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, f.Source)
	}
	if f.Location != "" {
		conds = append(conds, "preferred_location = ?")
		args = append(args, f.Location)
	}
	switch f.AssignedTo {
	case "":
	case Unassigned:
		conds = append(conds, "assigned_to IS NULL")
	default:
		conds = append(conds, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.CreatedFrom != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, toMicros(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, toMicros(*f.CreatedTo))
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		conds = append(conds, `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(email, '')) LIKE ? ESCAPE '\'`+
			` OR LOWER(COALESCE(phone, '')) LIKE ? ESCAPE '\' OR LOWER(COALESCE(message, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(n int64) time.Time { return time.UnixMicro(n).UTC() }

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
