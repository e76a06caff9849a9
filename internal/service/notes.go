package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ota-api/notes/internal/errs"
	"github.com/ota-api/notes/internal/model"
	"github.com/ota-api/notes/internal/repository"
	"github.com/ota-api/notes/internal/tracing"
)

const noteNotFound = "Note not found."

// SortableFields are the columns a note search may be ordered by.
var SortableFields = []string{"title", "date_created", "date_updated"}

// NoteStore is the storage the service needs. repository.NoteRepository
// implements it.
type NoteStore interface {
	Create(ctx context.Context, note *model.Note) error
	Update(ctx context.Context, note *model.Note) error
	GetByID(ctx context.Context, id int64) (*model.Note, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, query, sortBy string, limit, offset int) ([]model.Note, int64, error)
}

type NoteService struct {
	store NoteStore
}

func NewNoteService(store NoteStore) *NoteService {
	return &NoteService{store: store}
}

func (s *NoteService) FindOne(ctx context.Context, id int64) (model.NoteDTO, error) {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.NoteDTO{}, notFound(err)
	}
	return n.DTO(), nil
}

func (s *NoteService) Create(ctx context.Context, form model.NoteForm) (model.NoteDTO, error) {
	n := model.Note{Title: form.Title, Body: form.Body}
	if err := s.store.Create(ctx, &n); err != nil {
		return model.NoteDTO{}, fmt.Errorf("create note: %w", err)
	}
	tracing.Logger(ctx).Info().Int64("note_id", n.ID).Msg("note created")
	return n.DTO(), nil
}

func (s *NoteService) Update(ctx context.Context, form model.NoteForm) (model.NoteDTO, error) {
	n := model.Note{ID: form.ID, Title: form.Title, Body: form.Body}
	if err := s.store.Update(ctx, &n); err != nil {
		return model.NoteDTO{}, notFound(err)
	}
	tracing.Logger(ctx).Info().Int64("note_id", n.ID).Msg("note updated")
	return n.DTO(), nil
}

func (s *NoteService) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return notFound(err)
	}
	tracing.Logger(ctx).Info().Int64("note_id", id).Msg("note deleted")
	return nil
}

// FindAll runs a paginated search. An unknown sort column is a client error.
func (s *NoteService) FindAll(ctx context.Context, params model.PageParams) (model.Page[model.NoteDTO], error) {
	sortBy := params.Sort("title")
	if !slices.Contains(SortableFields, sortBy) {
		return model.Page[model.NoteDTO]{}, errs.NewBadRequest("Sorting '%s' column is not supported.", sortBy)
	}

	size := params.Size()
	notes, total, err := s.store.Search(ctx, params.Query, sortBy, size, params.Offset())
	if err != nil {
		return model.Page[model.NoteDTO]{}, fmt.Errorf("search notes: %w", err)
	}

	items := make([]model.NoteDTO, 0, len(notes))
	for _, n := range notes {
		items = append(items, n.DTO())
	}
	return model.Page[model.NoteDTO]{
		Items:      items,
		PageIndex:  max(params.Page, 0),
		TotalPages: int((total + int64(size) - 1) / int64(size)),
		TotalItems: total,
	}, nil
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &errs.NotFound{Message: noteNotFound}
	}
	return err
}
