package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ota-api/notes/internal/model"
)

// LogRepository appends captured HTTP exchanges. There is no read path.
type LogRepository struct {
	pool *pgxpool.Pool
}

// NewLogRepository returns a LogRepository using the given pool.
func NewLogRepository(pool *pgxpool.Pool) *LogRepository {
	return &LogRepository{pool: pool}
}

// Insert stores entry.
func (r *LogRepository) Insert(ctx context.Context, entry model.LogEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO logs (tracing_id, ip_address, method, path, status, request_body, response_body, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.CorrelationID,
		entry.ClientAddress,
		entry.Method,
		entry.Path,
		entry.StatusCode,
		entry.RequestBody,
		entry.ResponseBody,
		entry.Timestamp,
	)
	return err
}
