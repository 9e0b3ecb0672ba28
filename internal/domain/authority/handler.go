package authority

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
	readGroup.GET("/health-authorities", h.ListAuthorities)
	readGroup.GET("/health-authorities/:id", h.GetAuthority)
	readGroup.GET("/health-authorities/:id/configs", h.ListConfigs)
	readGroup.GET("/health-authority-config/:id", h.GetConfig)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleHealthAuthority))
	writeGroup.POST("/health-authorities", h.CreateAuthorities)
	writeGroup.PUT("/health-authorities/:id", h.UpdateAuthority)
	writeGroup.PUT("/health-authorities/:id/activate", h.Activate)
	writeGroup.PUT("/health-authorities/:id/deactivate", h.Deactivate)
	writeGroup.POST("/health-authority-config", h.CreateConfig)
	writeGroup.DELETE("/health-authority-config/:id", h.DeleteConfig)
}

func (h *Handler) CreateAuthorities(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperr.Validation("could not read request body")
	}
	items, err := ingest.DecodeBatch[*HealthAuthority](body, "healthAuthorities")
	if err != nil {
		return err
	}
	created, err := h.svc.CreateAuthorities(c.Request().Context(), items)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"data": created})
}

func (h *Handler) GetAuthority(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAuthority(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAuthorities(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAuthorities(c.Request().Context(), strings.ToUpper(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*HealthAuthority{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) UpdateAuthority(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var a HealthAuthority
	if err := c.Bind(&a); err != nil {
		return apperr.Validation("malformed request body")
	}
	updated, err := h.svc.UpdateAuthority(c.Request().Context(), id, &a)
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
	a, err := h.svc.SetStatus(c.Request().Context(), id, t)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateConfig(c echo.Context) error {
	var cfg Config
	if err := c.Bind(&cfg); err != nil {
		return apperr.Validation("malformed request body")
	}
	created, err := h.svc.CreateConfig(c.Request().Context(), &cfg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetConfig(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cfg, err := h.svc.GetConfig(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *Handler) ListConfigs(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListConfigs(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Config{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) DeleteConfig(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteConfig(c.Request().Context(), id); err != nil {
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
