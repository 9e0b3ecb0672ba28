package payer

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

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("/payers", auth.RequireAuthenticated())
	readGroup.GET("", h.List)
	readGroup.GET("/:id", h.Get)

	writeGroup := api.Group("/payers", auth.RequireRole(auth.RoleHealthAuthority))
	writeGroup.POST("", h.Create)
	writeGroup.PUT("/:id", h.Update)
	writeGroup.PUT("/:id/activate", h.Activate)
	writeGroup.PUT("/:id/deactivate", h.Deactivate)
	writeGroup.DELETE("/:id", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperr.Validation("could not read request body")
	}
	items, err := ingest.DecodeBatch[*Payer](body, "payers")
	if err != nil {
		return err
	}
	created, err := h.svc.Create(c.Request().Context(), items)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": created})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(),
		strings.ToUpper(c.QueryParam("status")), c.QueryParam("name"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Payer{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Payer
	if err := c.Bind(&p); err != nil {
		return apperr.Validation("malformed request body")
	}
	updated, err := h.svc.Update(c.Request().Context(), id, &p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Activate(c echo.Context) error {
	return h.transition(c, lifecycle.Activate)
}

func (h *Handler) Deactivate(c echo.Context) error {
	return h.transition(c, lifecycle.Deactivate)
}

func (h *Handler) transition(c echo.Context, t lifecycle.Transition) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.SetStatus(c.Request().Context(), id, t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
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
