package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository   = (*Repository)(nil)
	_ repository.UploadRepository = (*Repository)(nil)
	_ repository.EntryRepository  = (*Repository)(nil)
)

const bucketLabelLayout = "2006-01-02T15:04:05"

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, username, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// GetUserByUsername fetches a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	const query = `SELECT id, username, email, password_hash, role, created_at FROM users WHERE username = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, username))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, username, email, password_hash, role, created_at FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateUpload inserts an upload record and assigns its ID.
func (r *Repository) CreateUpload(ctx context.Context, upload *domain.Upload) error {
	if upload.Status == "" {
		upload.Status = domain.UploadProcessing
	}
	const query = `INSERT INTO log_files (user_id, filename, size, format, timestamp, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		upload.UserID,
		upload.Filename,
		upload.Size,
		upload.Format,
		upload.Timestamp,
		string(upload.Status),
	).Scan(&upload.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return repository.ErrNotFound
		}
		return err
	}
	return nil
}

const uploadColumns = `id, user_id, filename, size, format, timestamp, status, parsed_lines, skipped_lines`

// GetUpload fetches an upload by ID.
func (r *Repository) GetUpload(ctx context.Context, id int64) (*domain.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM log_files WHERE id = $1`
	u, err := scanUpload(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListUploadsByUser returns the user's uploads, newest first.
func (r *Repository) ListUploadsByUser(ctx context.Context, userID string) ([]domain.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM log_files WHERE user_id = $1 ORDER BY timestamp DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	uploads := make([]domain.Upload, 0)
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

func scanUpload(row pgx.Row) (domain.Upload, error) {
	var (
		u      domain.Upload
		status string
	)
	if err := row.Scan(&u.ID, &u.UserID, &u.Filename, &u.Size, &u.Format, &u.Timestamp, &status, &u.ParsedLines, &u.SkippedLines); err != nil {
		return domain.Upload{}, err
	}
	u.Status = domain.UploadStatus(status)
	return u, nil
}

// CompleteUpload copies every entry and marks the upload completed in one transaction.
func (r *Repository) CompleteUpload(ctx context.Context, id int64, entries []domain.LogEntry, counts domain.IngestCounts) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockProcessing(ctx, tx, id); err != nil {
		return err
	}

	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		extra := e.ExtraFields
		if extra == nil {
			extra = map[string]any{}
		}
		rows = append(rows, []any{id, nilIfEmpty(e.UserID), e.Timestamp, e.Level, e.Source, e.Message, extra})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"log_entries"},
		[]string{"log_file_id", "user_id", "timestamp", "log_level", "source", "message", "additional_fields"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy log entries: %w", err)
	}

	if err := finalize(ctx, tx, id, domain.UploadCompleted, counts); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FailUpload marks the upload failed without storing entries.
func (r *Repository) FailUpload(ctx context.Context, id int64, counts domain.IngestCounts) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockProcessing(ctx, tx, id); err != nil {
		return err
	}
	if err := finalize(ctx, tx, id, domain.UploadFailed, counts); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func lockProcessing(ctx context.Context, tx pgx.Tx, id int64) error {
	const query = `SELECT status FROM log_files WHERE id = $1 FOR UPDATE`
	var status string
	if err := tx.QueryRow(ctx, query, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	if domain.UploadStatus(status).Terminal() {
		return repository.ErrInvalidTransition
	}
	return nil
}

func finalize(ctx context.Context, tx pgx.Tx, id int64, status domain.UploadStatus, counts domain.IngestCounts) error {
	const query = `UPDATE log_files
		SET status = $2, format = $3, parsed_lines = $4, skipped_lines = $5
		WHERE id = $1`
	if _, err := tx.Exec(ctx, query, id, string(status), counts.Format, counts.Parsed, counts.Skipped); err != nil {
		return fmt.Errorf("update upload status: %w", err)
	}
	return nil
}

// SearchEntries returns one page of matches, newest first, and the total match count.
func (r *Repository) SearchEntries(ctx context.Context, filter domain.SearchFilter, limit, offset int) ([]domain.LogEntry, int, error) {
	where, args := entryFilter(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM log_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, log_file_id, COALESCE(user_id::text, ''), timestamp,
		COALESCE(log_level, ''), COALESCE(source, ''), COALESCE(message, ''), additional_fields
		FROM log_entries` + where + `
		ORDER BY timestamp DESC, id DESC
		LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]domain.LogEntry, 0, limit)
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.UploadID, &e.UserID, &e.Timestamp, &e.Level, &e.Source, &e.Message, &e.ExtraFields); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// entryFilter renders the predicates of f as a WHERE clause with positional args.
func entryFilter(f domain.SearchFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.Query != "" {
		add(`message ILIKE '%' || ? || '%'`, escapeLike(f.Query))
	}
	if f.Level != "" {
		add(`log_level = ?`, strings.ToUpper(f.Level))
	}
	if f.Start != nil {
		add(`timestamp >= ?`, f.Start.UTC().Format(domain.TimestampLayout))
	}
	if f.End != nil {
		add(`timestamp <= ?`, f.End.UTC().Format(domain.TimestampLayout))
	}
	if f.Source != "" {
		add(`source = ?`, f.Source)
	}
	if f.UploadID != nil {
		add(`log_file_id = ?`, *f.UploadID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// CountByInterval buckets entries with date_trunc; weeks start on Monday.
func (r *Repository) CountByInterval(ctx context.Context, q domain.TimeSeriesQuery) ([]domain.Point, error) {
	query := `SELECT date_trunc($1, timestamp::timestamp) AS bucket, COUNT(*)
		FROM log_entries
		WHERE timestamp >= $2 AND timestamp <= $3`
	args := []any{
		string(q.Interval),
		q.Start.UTC().Format(domain.TimestampLayout),
		q.End.UTC().Format(domain.TimestampLayout),
	}
	if q.UploadID != nil {
		args = append(args, *q.UploadID)
		query += ` AND log_file_id = $4`
	}
	query += ` GROUP BY bucket ORDER BY bucket`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.Point, 0)
	for rows.Next() {
		var (
			bucket time.Time
			count  int64
		)
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		points = append(points, domain.Point{X: bucket.UTC().Format(bucketLabelLayout), Y: count})
	}
	return points, rows.Err()
}

// CountByField counts entries per value of field; empty values are labelled Unknown.
func (r *Repository) CountByField(ctx context.Context, field domain.Field, uploadID *int64) ([]domain.Point, error) {
	var column string
	switch field {
	case domain.FieldLevel:
		column = "log_level"
	case domain.FieldSource:
		column = "source"
	default:
		return nil, fmt.Errorf("unsupported field %q", field)
	}
	query := `SELECT COALESCE(NULLIF(` + column + `, ''), $1) COLLATE "C" AS label, COUNT(*) AS n FROM log_entries`
	args := []any{domain.UnknownLabel}
	if uploadID != nil {
		args = append(args, *uploadID)
		query += ` WHERE log_file_id = $2`
	}
	query += ` GROUP BY label ORDER BY n DESC, label`
	return r.queryPoints(ctx, query, args...)
}

// TopMessages ranks the n most frequent messages at level, ties broken by message.
func (r *Repository) TopMessages(ctx context.Context, level string, n int, uploadID *int64) ([]domain.Point, error) {
	query, args := topMessagesQuery(level, n, uploadID)
	return r.queryPoints(ctx, query, args...)
}

// topMessagesQuery labels empty messages before grouping so they merge with
// literal Unknown messages.
func topMessagesQuery(level string, n int, uploadID *int64) (string, []any) {
	query := `SELECT COALESCE(NULLIF(message, ''), $3) COLLATE "C" AS label, COUNT(*) AS n
		FROM log_entries WHERE log_level = $1`
	args := []any{level, n, domain.UnknownLabel}
	if uploadID != nil {
		args = append(args, *uploadID)
		query += ` AND log_file_id = $4`
	}
	query += ` GROUP BY label ORDER BY n DESC, label LIMIT $2`
	return query, args
}

func (r *Repository) queryPoints(ctx context.Context, query string, args ...any) ([]domain.Point, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.Point, 0)
	for rows.Next() {
		var p domain.Point
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
