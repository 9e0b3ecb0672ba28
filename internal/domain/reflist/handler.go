package reflist

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
	readGroup := api.Group("", auth.RequireAuthenticated())
	writeGroup := api.Group("", auth.RequireRole(auth.RoleHealthAuthority))

	for _, k := range Kinds() {
		base := k.Path()
		readGroup.GET(base, h.ListLists(k))
		readGroup.GET(base+"/:id", h.GetList(k))

		writeGroup.POST(base, h.CreateLists(k))
		writeGroup.PUT(base+"/:id", h.UpdateList(k))
		writeGroup.PUT(base+"/:id/activate", h.SetStatus(k, lifecycle.Activate))
		writeGroup.PUT(base+"/:id/deactivate", h.SetStatus(k, lifecycle.Deactivate))
		writeGroup.DELETE(base+"/:id", h.DeleteList(k))
	}
}

func (h *Handler) CreateLists(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return apperr.Validation("could not read request body")
		}
		items, err := ingest.DecodeBatch[*List](body, kind.BodyField())
		if err != nil {
			return err
		}
		created, err := h.svc.Create(c.Request().Context(), kind, items)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, map[string]interface{}{"data": created})
	}
}

func (h *Handler) GetList(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		l, err := h.svc.Get(c.Request().Context(), kind, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, l)
	}
}

func (h *Handler) ListLists(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		pg := pagination.FromContext(c)
		f := Filter{
			Kind:   kind,
			Status: strings.ToUpper(c.QueryParam("status")),
			Name:   c.QueryParam("name"),
		}
		if v := c.QueryParam("parent_list_id"); v != "" {
			pid, err := uuid.Parse(v)
			if err != nil {
				return apperr.Validation("invalid parent_list_id %q", v)
			}
			f.ParentListID = &pid
		}
		items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
		if err != nil {
			return err
		}
		if items == nil {
			items = []*List{}
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
	}
}

func (h *Handler) UpdateList(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var l List
		if err := c.Bind(&l); err != nil {
			return apperr.Validation("malformed request body")
		}
		updated, err := h.svc.Update(c.Request().Context(), kind, id, &l)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, updated)
	}
}

func (h *Handler) SetStatus(kind Kind, t lifecycle.Transition) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		l, err := h.svc.SetStatus(c.Request().Context(), kind, id, t)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, l)
	}
}

func (h *Handler) DeleteList(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := h.svc.Delete(c.Request().Context(), kind, id); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id %q", c.Param("id"))
	}
	return id, nil
}
