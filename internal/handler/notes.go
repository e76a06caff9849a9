package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ota-api/notes/internal/errs"
	"github.com/ota-api/notes/internal/model"
	"github.com/ota-api/notes/internal/response"
)

// NoteService is what the note endpoints call. service.NoteService
// implements it.
type NoteService interface {
	FindOne(ctx context.Context, id int64) (model.NoteDTO, error)
	FindAll(ctx context.Context, params model.PageParams) (model.Page[model.NoteDTO], error)
	Create(ctx context.Context, form model.NoteForm) (model.NoteDTO, error)
	Update(ctx context.Context, form model.NoteForm) (model.NoteDTO, error)
	Delete(ctx context.Context, id int64) error
}

// NoteHandler serves /api/notes. Errors are returned to the echo error
// handler rather than written here.
type NoteHandler struct {
	Notes NoteService
}

// Register mounts the note routes on g. Collection routes answer with and
// without the trailing slash.
func (h *NoteHandler) Register(g *echo.Group) {
	g.GET("/:id", h.FindByID)
	g.DELETE("/:id", h.Delete)
	for _, p := range []string{"", "/"} {
		g.GET(p, h.FindAll)
		g.POST(p, h.Create)
		g.PUT(p, h.Update)
	}
}

// FindByID handles GET /api/notes/:id.
func (h *NoteHandler) FindByID(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	note, err := h.Notes.FindOne(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, note)
}

// FindAll handles GET /api/notes/?query=&sort_by=&page=&page_size=.
func (h *NoteHandler) FindAll(c echo.Context) error {
	var params model.PageParams
	if err := c.Bind(&params); err != nil {
		return err
	}
	page, err := h.Notes.FindAll(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, page)
}

// Create handles POST /api/notes/.
func (h *NoteHandler) Create(c echo.Context) error {
	form, err := bindForm(c)
	if err != nil {
		return err
	}
	note, err := h.Notes.Create(c.Request().Context(), form)
	if err != nil {
		return err
	}
	return response.Created(c, note)
}

// Update handles PUT /api/notes/. The note id travels in the body.
func (h *NoteHandler) Update(c echo.Context) error {
	form, err := bindForm(c)
	if err != nil {
		return err
	}
	note, err := h.Notes.Update(c.Request().Context(), form)
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, note)
}

// Delete handles DELETE /api/notes/:id.
func (h *NoteHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.Notes.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return response.NoContent(c)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errs.NewBadRequest("id should be of type number")
	}
	return id, nil
}

func bindForm(c echo.Context) (model.NoteForm, error) {
	var form model.NoteForm
	if err := c.Bind(&form); err != nil {
		return form, err
	}
	if err := c.Validate(&form); err != nil {
		return form, err
	}
	return form, nil
}
