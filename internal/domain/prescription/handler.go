package prescription

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	readGroup.GET("/prescriptions", h.List)
	readGroup.GET("/prescriptions/:id", h.Get)

	writeGroup := api.Group("", auth.RequireRole(auth.RolePharmacy))
	writeGroup.POST("/save_prescription", h.Create)
	writeGroup.POST("/prescription-detail/add", h.Create)
	writeGroup.DELETE("/prescriptions/:id", h.Delete)
	writeGroup.POST("/prescription-drugs/add", h.AddDrug)
	writeGroup.DELETE("/prescription-drugs/:id", h.RemoveDrug)
	writeGroup.POST("/prescription-diagnosis/add", h.AddDiagnosis)
	writeGroup.DELETE("/prescription-diagnosis/:id", h.RemoveDiagnosis)
}

func (h *Handler) Create(c echo.Context) error {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return apperr.Validation("malformed request body")
	}
	created, err := h.svc.Create(c.Request().Context(), &p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
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
	f := Filter{PatientReference: c.QueryParam("patient_reference")}
	if v := c.QueryParam("clinician_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("invalid clinician_id %q", v)
		}
		f.ClinicianID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
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

func (h *Handler) AddDrug(c echo.Context) error {
	var item DrugItem
	if err := c.Bind(&item); err != nil {
		return apperr.Validation("malformed request body")
	}
	created, err := h.svc.AddDrug(c.Request().Context(), &item)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) AddDiagnosis(c echo.Context) error {
	var item DiagnosisItem
	if err := c.Bind(&item); err != nil {
		return apperr.Validation("malformed request body")
	}
	created, err := h.svc.AddDiagnosis(c.Request().Context(), &item)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) RemoveDrug(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.RemoveDrug(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RemoveDiagnosis(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.RemoveDiagnosis(c.Request().Context(), id); err != nil {
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
