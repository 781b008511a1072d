package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wimarka/lakra/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const questionColumns = `id, language, type, question, options, correct_answer, explanation, difficulty, is_active, created_at, updated_at, created_by`

// CreateQuestion inserts a question and fills in its id and timestamps
func (r *PostgresRepository) CreateQuestion(ctx context.Context, q *models.ProficiencyQuestion) error {
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	query := `
		INSERT INTO proficiency_questions (language, type, question, options, correct_answer, explanation, difficulty, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		q.Language,
		string(q.Type),
		q.Question,
		optionsJSON,
		q.CorrectAnswer,
		q.Explanation,
		string(q.Difficulty),
		q.IsActive,
		q.CreatedBy,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return ErrDuplicateQuestion
		}
		return fmt.Errorf("failed to create question: %w", err)
	}

	return nil
}

// SeedQuestion inserts a question unless one with the same language and text
// exists. Reports whether a row was inserted.
func (r *PostgresRepository) SeedQuestion(ctx context.Context, q *models.ProficiencyQuestion) (bool, error) {
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return false, fmt.Errorf("failed to marshal options: %w", err)
	}

	query := `
		INSERT INTO proficiency_questions (language, type, question, options, correct_answer, explanation, difficulty, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (language, question) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		q.Language,
		string(q.Type),
		q.Question,
		optionsJSON,
		q.CorrectAnswer,
		q.Explanation,
		string(q.Difficulty),
		q.IsActive,
	)
	if err != nil {
		return false, fmt.Errorf("failed to seed question: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// GetQuestion retrieves a question by ID
func (r *PostgresRepository) GetQuestion(ctx context.Context, id int) (*models.ProficiencyQuestion, error) {
	query := `SELECT ` + questionColumns + ` FROM proficiency_questions WHERE id = $1`

	q, err := scanQuestion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	return q, nil
}

// UpdateQuestion overwrites every editable column of a question
func (r *PostgresRepository) UpdateQuestion(ctx context.Context, q *models.ProficiencyQuestion) error {
	optionsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	query := `
		UPDATE proficiency_questions
		SET language = $2, type = $3, question = $4, options = $5, correct_answer = $6,
		    explanation = $7, difficulty = $8, is_active = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		q.ID,
		q.Language,
		string(q.Type),
		q.Question,
		optionsJSON,
		q.CorrectAnswer,
		q.Explanation,
		string(q.Difficulty),
		q.IsActive,
	).Scan(&q.UpdatedAt)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return ErrDuplicateQuestion
		}
		return fmt.Errorf("failed to update question: %w", err)
	}

	return nil
}

// DeleteQuestion removes a question and its recorded answers
func (r *PostgresRepository) DeleteQuestion(ctx context.Context, id int) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM proficiency_questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	return nil
}

// ListQuestions returns questions with optional filters
func (r *PostgresRepository) ListQuestions(ctx context.Context, filters models.QuestionFilters) ([]*models.ProficiencyQuestion, error) {
	query := `SELECT ` + questionColumns + ` FROM proficiency_questions WHERE 1=1`
	args := make([]interface{}, 0)
	argNum := 1

	if filters.Language != "" {
		query += fmt.Sprintf(" AND language = $%d", argNum)
		args = append(args, filters.Language)
		argNum++
	}

	if filters.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argNum)
		args = append(args, string(filters.Type))
		argNum++
	}

	if filters.Difficulty != "" {
		query += fmt.Sprintf(" AND difficulty = $%d", argNum)
		args = append(args, string(filters.Difficulty))
		argNum++
	}

	if filters.ActiveOnly {
		query += " AND is_active = TRUE"
	}

	query += " ORDER BY language, id"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	return r.queryQuestions(ctx, query, args...)
}

// ActiveQuestionsByLanguages returns all active questions for the languages,
// grouped by language in the order given
func (r *PostgresRepository) ActiveQuestionsByLanguages(ctx context.Context, languages []string) ([]*models.ProficiencyQuestion, error) {
	if len(languages) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + questionColumns + `
		FROM proficiency_questions
		WHERE is_active = TRUE AND language = ANY($1)
		ORDER BY array_position($1, language), id
	`

	return r.queryQuestions(ctx, query, languages)
}

// GetQuestionsByIDs loads questions keyed by id. Missing ids are absent.
func (r *PostgresRepository) GetQuestionsByIDs(ctx context.Context, ids []int) (map[int]*models.ProficiencyQuestion, error) {
	result := make(map[int]*models.ProficiencyQuestion, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `SELECT ` + questionColumns + ` FROM proficiency_questions WHERE id = ANY($1)`
	questions, err := r.queryQuestions(ctx, query, ids)
	if err != nil {
		return nil, err
	}

	for _, q := range questions {
		result[q.ID] = q
	}
	return result, nil
}

// CountActiveQuestions counts active questions across the languages
func (r *PostgresRepository) CountActiveQuestions(ctx context.Context, languages []string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM proficiency_questions WHERE is_active = TRUE AND language = ANY($1)`,
		languages,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) queryQuestions(ctx context.Context, query string, args ...interface{}) ([]*models.ProficiencyQuestion, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []*models.ProficiencyQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}

	return questions, nil
}

func scanQuestion(row pgx.Row) (*models.ProficiencyQuestion, error) {
	var q models.ProficiencyQuestion
	var typ, difficulty string
	var optionsJSON []byte
	var createdBy sql.NullString

	err := row.Scan(
		&q.ID,
		&q.Language,
		&typ,
		&q.Question,
		&optionsJSON,
		&q.CorrectAnswer,
		&q.Explanation,
		&difficulty,
		&q.IsActive,
		&q.CreatedAt,
		&q.UpdatedAt,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}

	q.Type = models.QuestionType(typ)
	q.Difficulty = models.Difficulty(difficulty)
	if createdBy.Valid {
		q.CreatedBy = &createdBy.String
	}

	if err := json.Unmarshal(optionsJSON, &q.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}

	return &q, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
