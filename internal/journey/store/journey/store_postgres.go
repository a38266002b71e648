package journey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"memberportal/internal/journey/models"
	id "memberportal/pkg/domain"
	"memberportal/pkg/platform/sentinel"
	txcontext "memberportal/pkg/platform/tx"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresStore persists journeys in the journeys and journey_steps tables.
// The store is pure I/O; journey rules live in models and the service.
type PostgresStore[T models.Payload] struct {
	db          *sql.DB
	journeyType id.JourneyType
}

func NewPostgres[T models.Payload](db *sql.DB) *PostgresStore[T] {
	var zero T
	return &PostgresStore[T]{db: db, journeyType: zero.JourneyType()}
}

func (s *PostgresStore[T]) Create(ctx context.Context, j *models.Journey[T]) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context, exec txcontext.Executor) error {
		j.SetVersion(1)
		row, err := newJourneyRow(j)
		if err != nil {
			return err
		}
		_, err = exec.ExecContext(ctx, `
			INSERT INTO journeys (
				business_group, reference_number, journey_type, start_date, submission_date,
				expiration_date, active_branch, branch_numbers, payload, document_tags, version, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		`, row.args()...)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("journey %s: %w", j.Key(), sentinel.ErrAlreadyUsed)
			}
			return fmt.Errorf("insert journey: %w", err)
		}
		return insertSteps(ctx, exec, j)
	})
}

func (s *PostgresStore[T]) FindByKey(ctx context.Context, key id.JourneyKey) (*models.Journey[T], error) {
	return s.load(ctx, txcontext.ExecutorFrom(ctx, s.db), key, false)
}

// Save writes j when its version matches the stored one and bumps it.
func (s *PostgresStore[T]) Save(ctx context.Context, j *models.Journey[T]) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context, exec txcontext.Executor) error {
		return s.write(ctx, exec, j)
	})
}

func (s *PostgresStore[T]) Delete(ctx context.Context, key id.JourneyKey) error {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		DELETE FROM journeys
		WHERE business_group = $1 AND reference_number = $2 AND journey_type = $3
	`, key.Member.BusinessGroup, key.Member.ReferenceNumber, key.Type)
	if err != nil {
		return fmt.Errorf("delete journey: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete journey rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("journey %s: %w", key, sentinel.ErrNotFound)
	}
	return nil
}

// Execute loads the journey with SELECT ... FOR UPDATE, applies fn and saves
// in one transaction.
func (s *PostgresStore[T]) Execute(ctx context.Context, key id.JourneyKey, fn Mutation[T]) (*models.Journey[T], error) {
	var out *models.Journey[T]
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, exec txcontext.Executor) error {
		j, err := s.load(ctx, exec, key, true)
		if err != nil {
			return err
		}
		if err := fn(j); err != nil {
			return err
		}
		if err := s.write(ctx, exec, j); err != nil {
			return err
		}
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore[T]) ListByBusinessGroup(ctx context.Context, bg id.BusinessGroup) ([]*models.Journey[T], error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT reference_number
		FROM journeys
		WHERE business_group = $1 AND journey_type = $2
		ORDER BY reference_number
	`, bg, s.journeyType)
	if err != nil {
		return nil, fmt.Errorf("list journeys: %w", err)
	}
	var refs []id.ReferenceNumber
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan journey reference: %w", err)
		}
		refs = append(refs, id.ReferenceNumber(ref))
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate journeys: %w", err)
	}
	_ = rows.Close()

	out := make([]*models.Journey[T], 0, len(refs))
	for _, ref := range refs {
		key := id.NewJourneyKey(id.Member{BusinessGroup: bg, ReferenceNumber: ref}, s.journeyType)
		j, err := s.load(ctx, exec, key, false)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// DeleteExpired removes journeys whose expiration date is at or before now.
// Steps go with them through ON DELETE CASCADE.
func (s *PostgresStore[T]) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		DELETE FROM journeys
		WHERE journey_type = $1 AND expiration_date IS NOT NULL AND expiration_date <= $2
	`, s.journeyType, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired journeys: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rows affected: %w", err)
	}
	return int(rows), nil
}

func (s *PostgresStore[T]) load(ctx context.Context, exec txcontext.Executor, key id.JourneyKey, forUpdate bool) (*models.Journey[T], error) {
	query := `
		SELECT start_date, submission_date, expiration_date, active_branch, branch_numbers, payload, version
		FROM journeys
		WHERE business_group = $1 AND reference_number = $2 AND journey_type = $3
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	snap := models.Snapshot[T]{Member: key.Member, Type: key.Type}
	var (
		submission sql.NullTime
		expiration sql.NullTime
		branches   pq.Int64Array
		payload    []byte
	)
	err := exec.QueryRowContext(ctx, query, key.Member.BusinessGroup, key.Member.ReferenceNumber, key.Type).Scan(
		&snap.StartDate, &submission, &expiration, &snap.ActiveBranch, &branches, &payload, &snap.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("journey %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find journey: %w", err)
	}
	if submission.Valid {
		snap.SubmissionDate = &submission.Time
	}
	if expiration.Valid {
		snap.ExpirationDate = expiration.Time
	}
	if err := json.Unmarshal(payload, &snap.Payload); err != nil {
		return nil, fmt.Errorf("decode journey %s payload: %w: %w", key, sentinel.ErrInvalidState, err)
	}

	steps, err := loadSteps(ctx, exec, key)
	if err != nil {
		return nil, err
	}
	for _, number := range branches {
		snap.Branches = append(snap.Branches, models.BranchSnapshot{
			Number: int(number),
			Steps:  append([]models.StepSnapshot{}, steps[int(number)]...),
		})
	}
	return restore(key, snap)
}

// write performs the optimistic version check and replaces the step rows.
func (s *PostgresStore[T]) write(ctx context.Context, exec txcontext.Executor, j *models.Journey[T]) error {
	expected := j.Version()
	j.SetVersion(expected + 1)
	row, err := newJourneyRow(j)
	if err != nil {
		j.SetVersion(expected)
		return err
	}

	res, err := exec.ExecContext(ctx, `
		UPDATE journeys SET
			start_date = $4,
			submission_date = $5,
			expiration_date = $6,
			active_branch = $7,
			branch_numbers = $8,
			payload = $9,
			document_tags = $10,
			version = $11,
			updated_at = NOW()
		WHERE business_group = $1 AND reference_number = $2 AND journey_type = $3 AND version = $12
	`, append(row.args(), expected)...)
	if err != nil {
		j.SetVersion(expected)
		return fmt.Errorf("update journey: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		j.SetVersion(expected)
		return fmt.Errorf("update journey rows affected: %w", err)
	}
	if rows == 0 {
		j.SetVersion(expected)
		var exists bool
		key := j.Key()
		if err := exec.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM journeys WHERE business_group = $1 AND reference_number = $2 AND journey_type = $3)
		`, key.Member.BusinessGroup, key.Member.ReferenceNumber, key.Type).Scan(&exists); err != nil {
			return fmt.Errorf("check journey exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("journey %s: %w", key, sentinel.ErrNotFound)
		}
		return fmt.Errorf("journey %s at version %d: %w", key, expected, sentinel.ErrConflict)
	}

	key := j.Key()
	if _, err := exec.ExecContext(ctx, `
		DELETE FROM journey_steps
		WHERE business_group = $1 AND reference_number = $2 AND journey_type = $3
	`, key.Member.BusinessGroup, key.Member.ReferenceNumber, key.Type); err != nil {
		return fmt.Errorf("clear journey steps: %w", err)
	}
	return insertSteps(ctx, exec, j)
}

type journeyRow struct {
	key          id.JourneyKey
	startDate    time.Time
	submission   *time.Time
	expiration   *time.Time
	activeBranch int
	branches     pq.Int64Array
	payload      []byte
	tags         pq.StringArray
	version      int
}

func newJourneyRow[T models.Payload](j *models.Journey[T]) (journeyRow, error) {
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return journeyRow{}, fmt.Errorf("encode journey %s payload: %w", j.Key(), err)
	}
	row := journeyRow{
		key:          j.Key(),
		startDate:    j.StartDate(),
		activeBranch: j.ActiveBranchNumber(),
		branches:     pq.Int64Array{},
		payload:      payload,
		tags:         pq.StringArray(documentTags(j)),
		version:      j.Version(),
	}
	if row.tags == nil {
		row.tags = pq.StringArray{}
	}
	if at, ok := j.SubmissionDate(); ok {
		row.submission = &at
	}
	if exp := j.ExpirationDate(); !exp.IsZero() {
		row.expiration = &exp
	}
	for _, b := range j.Branches() {
		row.branches = append(row.branches, int64(b.Number()))
	}
	return row, nil
}

func (r journeyRow) args() []any {
	return []any{
		r.key.Member.BusinessGroup,
		r.key.Member.ReferenceNumber,
		r.key.Type,
		r.startDate,
		r.submission,
		r.expiration,
		r.activeBranch,
		r.branches,
		r.payload,
		r.tags,
		r.version,
	}
}

func insertSteps[T models.Payload](ctx context.Context, exec txcontext.Executor, j *models.Journey[T]) error {
	key := j.Key()
	for _, b := range j.Snapshot().Branches {
		for _, st := range b.Steps {
			form, err := nullableJSON(st.QuestionForm)
			if err != nil {
				return fmt.Errorf("encode question form: %w", err)
			}
			generic, err := nullableJSON(st.GenericData)
			if err != nil {
				return fmt.Errorf("encode generic data: %w", err)
			}
			checkboxes, err := nullableJSON(st.CheckboxesLists)
			if err != nil {
				return fmt.Errorf("encode checkboxes lists: %w", err)
			}
			_, err = exec.ExecContext(ctx, `
				INSERT INTO journey_steps (
					business_group, reference_number, journey_type, branch_number, sequence_number,
					current_page_key, next_page_key, submit_date, question_form, is_next_page_dead_end,
					generic_data, checkboxes_lists
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			`,
				key.Member.BusinessGroup, key.Member.ReferenceNumber, key.Type, b.Number, st.SequenceNumber,
				st.CurrentPageKey, st.NextPageKey, st.SubmitDate, form, st.IsNextPageDeadEnd,
				generic, checkboxes,
			)
			if err != nil {
				return fmt.Errorf("insert journey step: %w", err)
			}
		}
	}
	return nil
}

func loadSteps(ctx context.Context, exec txcontext.Executor, key id.JourneyKey) (map[int][]models.StepSnapshot, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT branch_number, sequence_number, current_page_key, next_page_key, submit_date,
			question_form, is_next_page_dead_end, generic_data, checkboxes_lists
		FROM journey_steps
		WHERE business_group = $1 AND reference_number = $2 AND journey_type = $3
		ORDER BY branch_number, sequence_number
	`, key.Member.BusinessGroup, key.Member.ReferenceNumber, key.Type)
	if err != nil {
		return nil, fmt.Errorf("find journey steps: %w", err)
	}
	defer rows.Close()

	steps := make(map[int][]models.StepSnapshot)
	for rows.Next() {
		var (
			branch                    int
			st                        models.StepSnapshot
			form, generic, checkboxes []byte
		)
		if err := rows.Scan(
			&branch, &st.SequenceNumber, &st.CurrentPageKey, &st.NextPageKey, &st.SubmitDate,
			&form, &st.IsNextPageDeadEnd, &generic, &checkboxes,
		); err != nil {
			return nil, fmt.Errorf("scan journey step: %w", err)
		}
		if err := decodeNullable(form, &st.QuestionForm); err != nil {
			return nil, fmt.Errorf("decode journey %s question form: %w: %w", key, sentinel.ErrInvalidState, err)
		}
		if err := decodeNullable(generic, &st.GenericData); err != nil {
			return nil, fmt.Errorf("decode journey %s generic data: %w: %w", key, sentinel.ErrInvalidState, err)
		}
		if err := decodeNullable(checkboxes, &st.CheckboxesLists); err != nil {
			return nil, fmt.Errorf("decode journey %s checkboxes: %w: %w", key, sentinel.ErrInvalidState, err)
		}
		steps[branch] = append(steps[branch], st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journey steps: %w", err)
	}
	return steps, nil
}

// nullableJSON maps nil pointers and empty slices to SQL NULL.
func nullableJSON[V any](v V) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

func decodeNullable[V any](raw []byte, dst *V) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
