package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examflow/internal/model"
)

// AttemptRef locates the attempt a student's answer belongs to.
type AttemptRef struct {
	ResultID  int64
	TestID    int64
	Kind      model.QuestionKind
	Finalized bool
}

const resultColumns = `r.id, r.student_id, r.test_id, r.start_time, r.end_time, r.total_score::float8`

// scoreExpr sums the score of every choice question answered correctly.
const scoreExpr = `COALESCE((
	SELECT SUM(q.score) FROM student_answers sa
	JOIN questions q ON q.id = sa.question_id
	JOIN answers a ON a.id = sa.answer_id
	WHERE sa.result_id = r.id AND a.is_correct
), 0)`

// ResultRepository handles attempts and their answers.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

func scanResult(row pgx.Row) (*model.ResultRecord, error) {
	rec := &model.ResultRecord{}
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.TestID, &rec.StartTime, &rec.EndTime, &rec.TotalScore); err != nil {
		return nil, err
	}
	return rec, nil
}

// Open inserts an open attempt. If one is already open for (student, test) it
// is returned unchanged and created is false.
func (r *ResultRepository) Open(ctx context.Context, studentID, testID int64, start time.Time) (*model.ResultRecord, bool, error) {
	rec, err := scanResult(r.pool.QueryRow(ctx,
		`INSERT INTO results AS r (student_id, test_id, start_time)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (student_id, test_id) WHERE end_time IS NULL DO NOTHING
		 RETURNING `+resultColumns,
		studentID, testID, start,
	))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	rec, err = r.GetOpen(ctx, studentID, testID)
	if err != nil {
		return nil, false, fmt.Errorf("get existing attempt: %w", err)
	}
	return rec, false, nil
}

// GetOpen retrieves the open attempt for (student, test).
func (r *ResultRepository) GetOpen(ctx context.Context, studentID, testID int64) (*model.ResultRecord, error) {
	return scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results r
		 WHERE r.student_id = $1 AND r.test_id = $2 AND r.end_time IS NULL`, studentID, testID))
}

// GetLatest retrieves the most recent attempt for (student, test), open or not.
func (r *ResultRepository) GetLatest(ctx context.Context, studentID, testID int64) (*model.ResultRecord, error) {
	return scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results r
		 WHERE r.student_id = $1 AND r.test_id = $2
		 ORDER BY r.start_time DESC LIMIT 1`, studentID, testID))
}

// AttemptForQuestion finds the student's latest attempt at the test that owns questionID.
func (r *ResultRepository) AttemptForQuestion(ctx context.Context, studentID, questionID int64) (*AttemptRef, error) {
	ref := &AttemptRef{}
	err := r.pool.QueryRow(ctx,
		`SELECT r.id, r.test_id, q.kind, r.end_time IS NOT NULL
		 FROM questions q
		 JOIN results r ON r.test_id = q.test_id AND r.student_id = $1
		 WHERE q.id = $2
		 ORDER BY r.start_time DESC LIMIT 1`, studentID, questionID,
	).Scan(&ref.ResultID, &ref.TestID, &ref.Kind, &ref.Finalized)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// AnswerBelongs reports whether answerID is a choice of questionID.
func (r *ResultRepository) AnswerBelongs(ctx context.Context, questionID, answerID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM answers WHERE id = $1 AND question_id = $2)`, answerID, questionID,
	).Scan(&ok)
	return ok, err
}

// SetChoice stores (overwrites) the selected answer. Writes to a finalized
// attempt affect no rows and return pgx.ErrNoRows.
func (r *ResultRepository) SetChoice(ctx context.Context, resultID, questionID, answerID int64) error {
	return r.upsertAnswer(ctx, resultID, questionID, &answerID, nil)
}

// SetText stores (overwrites) a free-text response.
func (r *ResultRepository) SetText(ctx context.Context, resultID, questionID int64, text string) error {
	return r.upsertAnswer(ctx, resultID, questionID, nil, &text)
}

func (r *ResultRepository) upsertAnswer(ctx context.Context, resultID, questionID int64, answerID *int64, text *string) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO student_answers (result_id, question_id, answer_id, content)
		 SELECT $1::bigint, $2::bigint, $3::bigint, $4::text FROM results WHERE id = $1 AND end_time IS NULL
		 ON CONFLICT (result_id, question_id)
		 DO UPDATE SET answer_id = EXCLUDED.answer_id, content = EXCLUDED.content, updated_at = now()`,
		resultID, questionID, answerID, text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Finalize closes the open attempt for (student, test). The end time is
// clamped to [start, start + duration] and the total score computed from the
// stored answers. It returns pgx.ErrNoRows when no attempt is open.
func (r *ResultRepository) Finalize(ctx context.Context, studentID, testID int64, end time.Time) (*model.ResultRecord, error) {
	return scanResult(r.pool.QueryRow(ctx,
		`UPDATE results r
		 SET end_time = GREATEST(r.start_time, LEAST($3::timestamptz, r.start_time + make_interval(mins => t.duration_minutes))),
		     total_score = `+scoreExpr+`
		 FROM tests t
		 WHERE t.id = r.test_id AND r.student_id = $1 AND r.test_id = $2 AND r.end_time IS NULL
		 RETURNING `+resultColumns,
		studentID, testID, end,
	))
}

// FinalizeExpired closes every open attempt whose deadline passed more than
// grace ago, ending it at the deadline.
func (r *ResultRepository) FinalizeExpired(ctx context.Context, grace time.Duration, limit int) ([]model.ResultRecord, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE results r
		 SET end_time = r.start_time + make_interval(mins => t.duration_minutes),
		     total_score = `+scoreExpr+`
		 FROM tests t
		 WHERE t.id = r.test_id AND r.id IN (
		     SELECT r2.id FROM results r2
		     JOIN tests t2 ON t2.id = r2.test_id
		     WHERE r2.end_time IS NULL
		       AND r2.start_time + make_interval(mins => t2.duration_minutes, secs => $1) < now()
		     ORDER BY r2.start_time
		     LIMIT $2
		     FOR UPDATE OF r2 SKIP LOCKED
		 )
		 RETURNING `+resultColumns,
		grace.Seconds(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.ResultRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// Detail builds the denormalized view of an attempt with correctness flags.
func (r *ResultRepository) Detail(ctx context.Context, rec *model.ResultRecord) (*model.ResultDetail, error) {
	d := &model.ResultDetail{
		Result: model.ResultSummary{
			TotalScore: rec.TotalScore,
			StartTime:  rec.StartTime,
			EndTime:    rec.EndTime,
		},
		Questions: []model.ResultQuestion{},
	}

	if err := r.pool.QueryRow(ctx, `SELECT title FROM tests WHERE id = $1`, rec.TestID).Scan(&d.Title); err != nil {
		return nil, fmt.Errorf("get test title: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.content, q.score::float8, q.kind, sa.answer_id,
		        COALESCE(sa.content, ''), COALESCE(a.is_correct, FALSE)
		 FROM questions q
		 LEFT JOIN student_answers sa ON sa.question_id = q.id AND sa.result_id = $1
		 LEFT JOIN answers a ON a.id = sa.answer_id
		 WHERE q.test_id = $2
		 ORDER BY q.order_num, q.id`, rec.ID, rec.TestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[int64]int)
	for rows.Next() {
		var q model.ResultQuestion
		if err := rows.Scan(&q.ID, &q.Content, &q.Score, &q.Kind, &q.AnswerID, &q.AnswerContent, &q.IsCorrect); err != nil {
			return nil, err
		}
		q.Answers = []model.ScoredAnswer{}
		index[q.ID] = len(d.Questions)
		d.Questions = append(d.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := r.pool.Query(ctx,
		`SELECT a.id, a.question_id, a.content, a.is_correct FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE q.test_id = $1 ORDER BY a.question_id, a.id`, rec.TestID)
	if err != nil {
		return nil, err
	}
	defer arows.Close()

	for arows.Next() {
		var a model.ScoredAnswer
		var questionID int64
		if err := arows.Scan(&a.ID, &questionID, &a.Content, &a.IsCorrect); err != nil {
			return nil, err
		}
		if i, ok := index[questionID]; ok {
			d.Questions[i].Answers = append(d.Questions[i].Answers, a)
		}
	}
	return d, arows.Err()
}

// ListByStudent retrieves a student's attempts, newest first.
func (r *ResultRepository) ListByStudent(ctx context.Context, studentID int64) ([]model.PastResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.test_id, t.title, r.total_score::float8, r.start_time, r.end_time
		 FROM results r JOIN tests t ON t.id = r.test_id
		 WHERE r.student_id = $1
		 ORDER BY r.start_time DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.PastResult{}
	for rows.Next() {
		var p model.PastResult
		if err := rows.Scan(&p.TestID, &p.Title, &p.TotalScore, &p.StartTime, &p.EndTime); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// ListByTest retrieves every attempt at a test.
func (r *ResultRepository) ListByTest(ctx context.Context, testID int64) ([]model.TestResultRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.student_id, u.username, r.total_score::float8, r.start_time, r.end_time
		 FROM results r JOIN users u ON u.id = r.student_id
		 WHERE r.test_id = $1
		 ORDER BY r.start_time`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.TestResultRow{}
	for rows.Next() {
		var row model.TestResultRow
		if err := rows.Scan(&row.StudentID, &row.Username, &row.TotalScore, &row.StartTime, &row.EndTime); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
