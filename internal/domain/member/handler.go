package member

import (
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/auth"
	"github.com/clinref/clinref/pkg/pagination"
)

// Handler serves one member entity under /<path>. Create requests carry
// the batch under field, e.g. {"drugs": [...]}.
type Handler[T Member] struct {
	svc   *Service[T]
	path  string
	field string
	alloc func() T
}

func NewHandler[T Member](svc *Service[T], path, field string, alloc func() T) *Handler[T] {
	return &Handler[T]{svc: svc, path: path, field: field, alloc: alloc}
}

func NewDiagnosisHandler(svc *Service[*Diagnosis]) *Handler[*Diagnosis] {
	return NewHandler(svc, "/diagnoses", "diagnoses", func() *Diagnosis { return &Diagnosis{} })
}

func NewDrugHandler(svc *Service[*Drug]) *Handler[*Drug] {
	return NewHandler(svc, "/drugs", "drugs", func() *Drug { return &Drug{} })
}

func NewClinicianHandler(svc *Service[*Clinician]) *Handler[*Clinician] {
	return NewHandler(svc, "/clinicians", "clinicians", func() *Clinician { return &Clinician{} })
}

func (h *Handler[T]) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireAuthenticated())
	readGroup.GET(h.path, h.List)
	readGroup.GET(h.path+"/:id", h.Get)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleHealthAuthority))
	writeGroup.POST(h.path, h.Create)
	writeGroup.PUT(h.path+"/:id", h.Update)
	writeGroup.PUT(h.path+"/:id/activate", h.Activate)
	writeGroup.PUT(h.path+"/:id/deactivate", h.Deactivate)
	writeGroup.DELETE(h.path+"/:id", h.Delete)
}

func (h *Handler[T]) Create(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperr.Validation("could not read request body")
	}
	items, err := ingest.DecodeBatch[T](body, h.field)
	if err != nil {
		return err
	}
	created, err := h.svc.Create(c.Request().Context(), items)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": created})
}

func (h *Handler[T]) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler[T]) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Status: strings.ToLower(c.QueryParam("status"))}
	if v := c.QueryParam("list_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("invalid list_id %q", v)
		}
		f.ListID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []T{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler[T]) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item := h.alloc()
	if err := c.Bind(item); err != nil {
		return apperr.Validation("malformed request body")
	}
	updated, err := h.svc.Update(c.Request().Context(), id, item)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler[T]) Activate(c echo.Context) error {
	return h.transition(c, lifecycle.Activate)
}

func (h *Handler[T]) Deactivate(c echo.Context) error {
	return h.transition(c, lifecycle.Deactivate)
}

func (h *Handler[T]) transition(c echo.Context, t lifecycle.Transition) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	item, err := h.svc.SetStatus(c.Request().Context(), id, t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler[T]) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id %q", c.Param("id"))
	}
	return id, nil
}
