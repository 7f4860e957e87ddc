package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusflow/campusflow/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for approval subjects.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const subjectColumns = `id, kind, owner_id, status, created_at, submitted_at, level1_at, level1_by,
decided_at, decided_by, rejection_reason, payload, version`

// LoadSubject fetches a subject by id.
func (r *Repository) LoadSubject(ctx context.Context, id string) (Subject, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+subjectColumns+` FROM approval_subjects WHERE id=$1`, id)
	s, err := scanSubject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subject{}, ErrNotFound
	}
	return s, err
}

// SaveSubject writes s only while the stored status equals expected and the
// stored version equals expectedVersion. The version catches a subject that
// left and came back to the same status in between. A
// concurrent writer that got there first leaves zero matching rows or
// aborts this transaction; both surface as ErrConflict.
func (r *Repository) SaveSubject(ctx context.Context, s Subject, expected Status, expectedVersion int64) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE approval_subjects SET
status=$3, submitted_at=$4, level1_at=$5, level1_by=$6, decided_at=$7, decided_by=$8,
rejection_reason=$9, payload=$10, version=$11, updated_at=NOW()
WHERE id=$1 AND status = ANY($2) AND version=$12`,
			s.ID, statusAliases(expected), string(s.Status), s.SubmittedAt, s.Level1At, s.Level1By,
			s.DecidedAt, s.DecidedBy, s.RejectionReason, payloadArg(s.Payload), s.Version, expectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM approval_subjects WHERE id=$1)`, s.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	})
	if errors.Is(err, db.ErrSerialization) {
		return ErrConflict
	}
	return err
}

// CreateSubject inserts a new subject.
func (r *Repository) CreateSubject(ctx context.Context, s Subject) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO approval_subjects (`+subjectColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, string(s.Kind), s.OwnerID, string(s.Status), s.CreatedAt, s.SubmittedAt, s.Level1At, s.Level1By,
		s.DecidedAt, s.DecidedBy, s.RejectionReason, payloadArg(s.Payload), s.Version)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

// ListSubjects returns subjects matching the filter, oldest first.
func (r *Repository) ListSubjects(ctx context.Context, f ListFilter) ([]Subject, error) {
	var (
		clauses []string
		args    []any
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, kinds)
		clauses = append(clauses, fmt.Sprintf("kind = ANY($%d)", len(args)))
	}
	if len(f.Statuses) > 0 {
		var statuses []string
		for _, st := range f.Statuses {
			statuses = append(statuses, statusAliases(st)...)
		}
		args = append(args, statuses)
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	query := `SELECT ` + subjectColumns + ` FROM approval_subjects`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanSubject(row pgx.Row) (Subject, error) {
	var (
		s            Subject
		kind, status string
		payload      []byte
	)
	if err := row.Scan(&s.ID, &kind, &s.OwnerID, &status, &s.CreatedAt, &s.SubmittedAt, &s.Level1At, &s.Level1By,
		&s.DecidedAt, &s.DecidedBy, &s.RejectionReason, &payload, &s.Version); err != nil {
		return Subject{}, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return Subject{}, err
	}
	s.Kind = Kind(kind)
	s.Status = st
	s.Payload = payload
	return s, nil
}

// statusAliases includes legacy spellings that ParseStatus folds into st.
func statusAliases(st Status) []string {
	switch st {
	case StatusSubmitted:
		return []string{string(st), legacyPending}
	case StatusApproved:
		return []string{string(st), legacyPrincipalApproved}
	default:
		return []string{string(st)}
	}
}

func payloadArg(p []byte) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}

var _ RepositoryPort = (*Repository)(nil)
