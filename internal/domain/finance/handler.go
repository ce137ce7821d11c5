package finance

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/doseledger/doseledger/internal/domain/dosing"
	"github.com/doseledger/doseledger/internal/platform/auth"
	"github.com/doseledger/doseledger/internal/platform/validate"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
	"github.com/doseledger/doseledger/pkg/pagination"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleStaff))
	staff.POST("/injections", h.RegisterInjection)
	staff.PUT("/injections/:id", h.UpdateInjection)
	staff.DELETE("/injections/:id", h.DeleteInjection)
	staff.POST("/injections/:id/pay", h.MarkInjectionPaid)

	staff.GET("/financial-records", h.ListRecords)
	staff.POST("/financial-records", h.CreateRecord)
	staff.GET("/financial-records/monthly", h.MonthlyGroups)
	staff.GET("/financial-records/export.xlsx", h.ExportMonthly)
	staff.GET("/financial-records/:id", h.GetRecord)
	staff.PUT("/financial-records/:id", h.UpdateRecord)
	staff.DELETE("/financial-records/:id", h.DeleteRecord)
	staff.POST("/financial-records/:id/approve", h.ApproveRecord)
	staff.POST("/financial-records/:id/reject", h.RejectRecord)

	staff.GET("/dashboard/finance", h.Dashboard)
	staff.GET("/dashboard/debtors", h.Debtors)
	staff.GET("/patients/:id/summary", h.PatientSummary)

	portal := api.Group("/portal", auth.RequireRole(auth.RolePatient))
	portal.POST("/payment-confirmations", h.RequestPaymentConfirmation)
	portal.GET("/summary", h.PortalSummary)
	portal.GET("/monthly", h.PortalMonthly)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// httpError maps service errors onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyPaid):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// -- Injection Handlers --

type registerInjectionRequest struct {
	dosing.Injection
	Paid bool `json:"paid"`
}

func (h *Handler) RegisterInjection(c echo.Context) error {
	var req registerInjectionRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	inj := req.Injection
	if err := h.svc.RegisterInjection(c.Request().Context(), &inj, req.Paid); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, inj)
}

func (h *Handler) UpdateInjection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var inj dosing.Injection
	if err := c.Bind(&inj); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inj.ID = id
	if err := h.svc.UpdateInjection(c.Request().Context(), &inj); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inj)
}

func (h *Handler) DeleteInjection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteInjection(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) MarkInjectionPaid(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.MarkInjectionPaid(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if rec == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, rec)
}

// -- Financial Record Handlers --

// FilterFromQuery reads patient_id, status, from and to.
func FilterFromQuery(c echo.Context) (RecordFilter, error) {
	var f RecordFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		f.Status = &st
	}
	for _, q := range []struct {
		name string
		dst  **calendar.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		v := c.QueryParam(q.name)
		if v == "" {
			continue
		}
		d := calendar.ParseSafeDate(v)
		if d.IsZero() {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid "+q.name+" date")
		}
		*q.dst = &d
	}
	return f, nil
}

func (h *Handler) ListRecords(c echo.Context) error {
	f, err := FilterFromQuery(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListRecords(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	p := pagination.FromContext(c)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, p), len(items), p))
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var rec Record
	if err := validate.BindAndValidate(c, &rec); err != nil {
		return err
	}
	if err := h.svc.CreateRecord(c.Request().Context(), &rec); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateRecordRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	existing, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	rec := req.apply(existing)
	if err := h.svc.UpdateRecord(c.Request().Context(), rec); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// updateRecordRequest is a partial edit; omitted fields keep their stored
// values.
type updateRecordRequest struct {
	Amount      *money.Money   `json:"amount" validate:"omitempty,gte=0"`
	Description *string        `json:"description" validate:"omitempty,max=500"`
	DueDate     *calendar.Date `json:"due_date"`
	Status      *Status        `json:"status"`
}

func (r updateRecordRequest) apply(existing *Record) *Record {
	rec := &Record{
		ID:          existing.ID,
		Amount:      existing.Amount,
		Description: existing.Description,
		DueDate:     existing.DueDate,
		Status:      existing.Status,
	}
	if r.Amount != nil {
		rec.Amount = *r.Amount
	}
	if r.Description != nil {
		rec.Description = *r.Description
	}
	if r.DueDate != nil {
		rec.DueDate = *r.DueDate
	}
	if r.Status != nil {
		rec.Status = *r.Status
	}
	return rec
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteRecord(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ApproveRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.ApproveRecord(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) RejectRecord(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.RejectRecord(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func optionalPatient(c echo.Context) (*uuid.UUID, error) {
	v := c.QueryParam("patient_id")
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	return &id, nil
}

func (h *Handler) MonthlyGroups(c echo.Context) error {
	pid, err := optionalPatient(c)
	if err != nil {
		return err
	}
	groups, err := h.svc.MonthlyGroups(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *Handler) ExportMonthly(c echo.Context) error {
	pid, err := optionalPatient(c)
	if err != nil {
		return err
	}
	groups, err := h.svc.MonthlyGroups(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	var buf bytes.Buffer
	if err := ExportMonthlyXLSX(groups, &buf); err != nil {
		return httpError(err)
	}
	filename := fmt.Sprintf("financeiro-%s.xlsx", h.svc.Today())
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}

// -- Dashboard Handlers --

func (h *Handler) Dashboard(c echo.Context) error {
	l, err := h.svc.Dashboard(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) Debtors(c echo.Context) error {
	rows, err := h.svc.Debtors(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handler) PatientSummary(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.PatientSummary(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

// -- Portal Handlers --

func portalPatient(c echo.Context) (uuid.UUID, error) {
	id, err := auth.PatientIDFromContext(c.Request().Context())
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "token is not bound to a patient")
	}
	return id, nil
}

type paymentConfirmationRequest struct {
	InjectionIDs []uuid.UUID `json:"injection_ids" validate:"max=100"`
}

func (h *Handler) RequestPaymentConfirmation(c echo.Context) error {
	pid, err := portalPatient(c)
	if err != nil {
		return err
	}
	var req paymentConfirmationRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return err
	}
	recs, err := h.svc.RequestPaymentConfirmation(c.Request().Context(), pid, req.InjectionIDs)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, recs)
}

func (h *Handler) PortalSummary(c echo.Context) error {
	pid, err := portalPatient(c)
	if err != nil {
		return err
	}
	sum, err := h.svc.PortalSummary(c.Request().Context(), pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) PortalMonthly(c echo.Context) error {
	pid, err := portalPatient(c)
	if err != nil {
		return err
	}
	groups, err := h.svc.MonthlyGroups(c.Request().Context(), &pid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, groups)
}
