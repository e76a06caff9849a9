package model

import "time"

// LogEntry describes one completed HTTP exchange. It is built once the
// handler has returned and is never modified afterwards.
type LogEntry struct {
	ID            int64     `json:"id,omitempty" db:"id"`
	CorrelationID string    `json:"correlation_id" db:"tracing_id"`
	ClientAddress string    `json:"client_address" db:"ip_address"`
	Method        string    `json:"method" db:"method"`
	Path          string    `json:"path" db:"path"`
	StatusCode    int       `json:"status_code" db:"status"`
	RequestBody   string    `json:"request_body" db:"request_body"`
	ResponseBody  string    `json:"response_body" db:"response_body"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}
