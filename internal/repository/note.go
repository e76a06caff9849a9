package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ota-api/notes/internal/model"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("repository: not found")

// sortColumns maps the public sort keys to columns. Keys outside this map
// never reach SQL.
var sortColumns = map[string]string{
	"title":        "title",
	"date_created": "date_created",
	"date_updated": "date_updated",
}

// NoteRepository persists notes.
type NoteRepository struct {
	pool *pgxpool.Pool
}

// NewNoteRepository returns a NoteRepository using the given pool.
func NewNoteRepository(pool *pgxpool.Pool) *NoteRepository {
	return &NoteRepository{pool: pool}
}

// Create inserts a note and sets its ID and timestamps.
func (r *NoteRepository) Create(ctx context.Context, note *model.Note) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO notes (title, body)
		VALUES ($1, $2)
		RETURNING id, date_created, date_updated`,
		note.Title,
		note.Body,
	).Scan(&note.ID, &note.DateCreated, &note.DateUpdated)
}

// Update rewrites title and body and bumps date_updated.
func (r *NoteRepository) Update(ctx context.Context, note *model.Note) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE notes SET title = $2, body = $3, date_updated = now()
		WHERE id = $1
		RETURNING date_created, date_updated`,
		note.ID,
		note.Title,
		note.Body,
	).Scan(&note.DateCreated, &note.DateUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// GetByID returns one note by id.
func (r *NoteRepository) GetByID(ctx context.Context, id int64) (*model.Note, error) {
	var n model.Note
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, body, date_created, date_updated
		FROM notes WHERE id = $1`, id).Scan(
		&n.ID,
		&n.Title,
		&n.Body,
		&n.DateCreated,
		&n.DateUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// Delete removes a note.
func (r *NoteRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Search returns notes whose title or body contains query, ordered
// ascending by sortBy, plus the total number of matches.
func (r *NoteRepository) Search(ctx context.Context, query, sortBy string, limit, offset int) ([]model.Note, int64, error) {
	column, ok := sortColumns[sortBy]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported sort column %q", sortBy)
	}
	pattern := "%" + query + "%"

	var total int64
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM notes
		WHERE title ILIKE $1 OR body ILIKE $1`, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, title, body, date_created, date_updated
		FROM notes
		WHERE title ILIKE $1 OR body ILIKE $1
		ORDER BY `+column+` ASC, id ASC
		LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	notes, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Note])
	if err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}
