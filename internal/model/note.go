package model

import "time"

type Note struct {
	ID          int64     `db:"id"`
	Title       string    `db:"title"`
	Body        string    `db:"body"`
	DateCreated time.Time `db:"date_created"`
	DateUpdated time.Time `db:"date_updated"`
}

// NoteDTO is the wire shape of a note.
type NoteDTO struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	DateCreated string `json:"date_created,omitempty"`
	DateUpdated string `json:"date_updated,omitempty"`
}

func (n Note) DTO() NoteDTO {
	dto := NoteDTO{ID: n.ID, Title: n.Title, Body: n.Body}
	if !n.DateCreated.IsZero() {
		dto.DateCreated = n.DateCreated.UTC().Format(time.RFC3339Nano)
	}
	if !n.DateUpdated.IsZero() {
		dto.DateUpdated = n.DateUpdated.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

// NoteForm is the create/update payload. ID is ignored on create.
type NoteForm struct {
	ID    int64  `json:"id"`
	Title string `json:"title" validate:"required,min=3,max=60"`
	Body  string `json:"body" validate:"required,min=3,max=255"`
}

// PageParams are the query parameters of a paginated note search.
type PageParams struct {
	Query    string `query:"query"`
	SortBy   string `query:"sort_by"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

const DefaultPageSize = 10

// Size returns the page size, falling back to DefaultPageSize.
func (p PageParams) Size() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	return p.PageSize
}

// Sort returns the requested sort column or def.
func (p PageParams) Sort(def string) string {
	if p.SortBy == "" {
		return def
	}
	return p.SortBy
}

// Offset is the row offset of the requested page.
func (p PageParams) Offset() int {
	page := p.Page
	if page < 0 {
		page = 0
	}
	return page * p.Size()
}

// Page is one page of search results.
type Page[T any] struct {
	Items      []T   `json:"items"`
	PageIndex  int   `json:"page_index"`
	TotalPages int   `json:"total_pages"`
	TotalItems int64 `json:"total_items"`
}
