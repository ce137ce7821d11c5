package dosing

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/doseledger/doseledger/internal/platform/auth"
	"github.com/doseledger/doseledger/internal/platform/db"
	"github.com/doseledger/doseledger/internal/platform/validate"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts medication CRUD and injection reads. Injection
// writes are mounted by the finance handler.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleStaff))
	staff.GET("/medications", h.ListMedications)
	staff.POST("/medications", h.CreateMedication)
	staff.GET("/medications/:id", h.GetMedication)
	staff.PUT("/medications/:id", h.UpdateMedication)
	staff.DELETE("/medications/:id", h.DeleteMedication)
	staff.GET("/medications/:id/quote", h.QuoteDose)

	staff.GET("/injections", h.ListInjections)
	staff.GET("/injections/:id", h.GetInjection)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func notFoundOr(err error, what string, fallback int) error {
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	}
	return echo.NewHTTPError(fallback, err.Error())
}

// -- Medication Handlers --

func (h *Handler) CreateMedication(c echo.Context) error {
	var m Medication
	if err := validate.BindAndValidate(c, &m); err != nil {
		return err
	}
	if err := h.svc.CreateMedication(c.Request().Context(), &m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedication(c.Request().Context(), id)
	if err != nil {
		return notFoundOr(err, "medication", http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedications(c echo.Context) error {
	items, err := h.svc.ListMedications(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Medication{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var m Medication
	if err := validate.BindAndValidate(c, &m); err != nil {
		return err
	}
	m.ID = id
	if err := h.svc.UpdateMedication(c.Request().Context(), &m); err != nil {
		return notFoundOr(err, "medication", http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedication(c.Request().Context(), id); err != nil {
		return notFoundOr(err, "medication", http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) QuoteDose(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	q, err := h.svc.QuoteDose(c.Request().Context(), id, Dosage(c.QueryParam("dosage")))
	if err != nil {
		return notFoundOr(err, "medication", http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, q)
}

// -- Injection Handlers --

// FilterFromQuery reads patient_id, from, to and unpaid query parameters.
func FilterFromQuery(c echo.Context) (InjectionFilter, error) {
	var f InjectionFilter
	if v := c.QueryParam("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &pid
	}
	if v := c.QueryParam("from"); v != "" {
		d := calendar.ParseSafeDate(v)
		if d.IsZero() {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		f.From = &d
	}
	if v := c.QueryParam("to"); v != "" {
		d := calendar.ParseSafeDate(v)
		if d.IsZero() {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
		f.To = &d
	}
	f.Unpaid = c.QueryParam("unpaid") == "true"
	return f, nil
}

func (h *Handler) ListInjections(c echo.Context) error {
	f, err := FilterFromQuery(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListInjections(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	pg := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg))
}

func (h *Handler) GetInjection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inj, err := h.svc.GetInjection(c.Request().Context(), id)
	if err != nil {
		return notFoundOr(err, "injection", http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, inj)
}
