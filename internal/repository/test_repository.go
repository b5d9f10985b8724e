package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examflow/internal/model"
)

var ErrDuplicatePasscode = errors.New("test with this passcode already exists")

const testColumns = `t.id, t.teacher_id, t.title, t.description, t.duration_minutes,
	t.time_open, t.time_close, t.passcode,
	(SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id)::int`

// TestRepository handles tests and their questions.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

func scanTest(row pgx.Row) (*model.TestDescriptor, error) {
	t := &model.TestDescriptor{}
	err := row.Scan(&t.ID, &t.TeacherID, &t.Title, &t.Description, &t.DurationMinutes,
		&t.TimeOpen, &t.TimeClose, &t.Passcode, &t.QuestionCount)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetByID retrieves a test by ID.
func (r *TestRepository) GetByID(ctx context.Context, id int64) (*model.TestDescriptor, error) {
	return scanTest(r.pool.QueryRow(ctx,
		`SELECT `+testColumns+` FROM tests t WHERE t.id = $1`, id))
}

// GetByPasscode retrieves a test by its unique passcode.
func (r *TestRepository) GetByPasscode(ctx context.Context, passcode string) (*model.TestDescriptor, error) {
	return scanTest(r.pool.QueryRow(ctx,
		`SELECT `+testColumns+` FROM tests t WHERE t.passcode = $1`, passcode))
}

// ListByTeacher retrieves a teacher's tests, newest first.
func (r *TestRepository) ListByTeacher(ctx context.Context, teacherID int64) ([]model.TestDescriptor, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+testColumns+` FROM tests t WHERE t.teacher_id = $1 ORDER BY t.time_open DESC, t.id DESC`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tests := []model.TestDescriptor{}
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, *t)
	}
	return tests, rows.Err()
}

// Create inserts a test with its questions and answers in one transaction.
func (r *TestRepository) Create(ctx context.Context, teacherID int64, req *model.CreateTestRequest) (*model.TestDescriptor, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	t := &model.TestDescriptor{
		TeacherID:       teacherID,
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		TimeOpen:        req.TimeOpen,
		TimeClose:       req.TimeClose,
		Passcode:        req.Passcode,
		QuestionCount:   len(req.Questions),
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO tests (teacher_id, title, description, passcode, duration_minutes, time_open, time_close)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		teacherID, t.Title, t.Description, t.Passcode, t.DurationMinutes, t.TimeOpen, t.TimeClose,
	).Scan(&t.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicatePasscode
		}
		return nil, fmt.Errorf("insert test: %w", err)
	}

	for i, q := range req.Questions {
		var questionID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (test_id, content, score, kind, order_num)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id`,
			t.ID, q.Content, q.Score, model.KindFor(len(q.Answers)), i+1,
		).Scan(&questionID)
		if err != nil {
			return nil, fmt.Errorf("insert question %d: %w", i+1, err)
		}

		if len(q.Answers) == 0 {
			continue
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"answers"},
			[]string{"question_id", "content", "is_correct"},
			pgx.CopyFromSlice(len(q.Answers), func(j int) ([]interface{}, error) {
				return []interface{}{questionID, q.Answers[j].Content, q.Answers[j].IsCorrect}, nil
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("insert answers of question %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// Questions returns a test's questions in order, with choices but without
// correctness flags.
func (r *TestRepository) Questions(ctx context.Context, testID int64) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, content, score::float8, kind FROM questions
		 WHERE test_id = $1 ORDER BY order_num, id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	index := make(map[int64]int)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Content, &q.Score, &q.Kind); err != nil {
			return nil, err
		}
		q.Answers = []model.Answer{}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	arows, err := r.pool.Query(ctx,
		`SELECT a.id, a.question_id, a.content FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 WHERE q.test_id = $1 ORDER BY a.question_id, a.id`, testID)
	if err != nil {
		return nil, err
	}
	defer arows.Close()

	for arows.Next() {
		var a model.Answer
		var questionID int64
		if err := arows.Scan(&a.ID, &questionID, &a.Content); err != nil {
			return nil, err
		}
		if i, ok := index[questionID]; ok {
			questions[i].Answers = append(questions[i].Answers, a)
		}
	}
	return questions, arows.Err()
}
