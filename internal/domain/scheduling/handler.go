package scheduling

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/healthops/healthops/internal/platform/auth"
	"github.com/healthops/healthops/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts appointment routes. The /healthcare/appointments/*
// routes are the voice agent's tool callbacks and take no token.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/healthcare/appointments/create", h.BookAppointment)
	api.POST("/healthcare/appointments/reschedule", h.RescheduleAppointment)
	api.POST("/healthcare/appointments/delete", h.CancelAppointment)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
	staff.GET("/appointments", h.ListAppointments)
	staff.GET("/appointments/stats/summary", h.GetStats)
	staff.PATCH("/appointments/edit", h.EditAppointment)
	staff.GET("/appointments/:appointment_id", h.GetAppointment)
	staff.GET("/appointments/:appointment_id/history", h.GetHistory)
	staff.PUT("/appointments/:appointment_id", h.UpdateAppointment)
	staff.PATCH("/appointments/:appointment_id/status", h.UpdateStatus)
}

func errorStatus(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Appointment not found")
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrTerminalStatus),
		errors.Is(err, ErrCancellationNeedsReason):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process appointment request")
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Book(c.Request().Context(), req)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":        true,
		"message":        "Appointment scheduled successfully",
		"appointment_id": a.AppointmentID,
		"appointment":    a,
	})
}

func (h *Handler) RescheduleAppointment(c echo.Context) error {
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Reschedule(c.Request().Context(), req)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "Appointment rescheduled successfully",
		"appointment": a,
	})
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Cancel(c.Request().Context(), req)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":        true,
		"message":        "Appointment cancelled successfully",
		"appointment_id": a.AppointmentID,
		"status":         a.Status,
	})
}

func (h *Handler) GetAppointment(c echo.Context) error {
	a, err := h.svc.Get(c.Request().Context(), c.Param("appointment_id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"appointment": a,
	})
}

func (h *Handler) GetHistory(c echo.Context) error {
	id := c.Param("appointment_id")
	entries, err := h.svc.History(c.Request().Context(), id)
	if err != nil {
		return errorStatus(err)
	}
	if entries == nil {
		entries = []*HistoryEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":        true,
		"appointment_id": id,
		"history":        entries,
	})
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	var u AppointmentUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Update(c.Request().Context(), c.Param("appointment_id"), u)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "Appointment updated successfully",
		"appointment": a,
	})
}

func (h *Handler) EditAppointment(c echo.Context) error {
	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Edit(c.Request().Context(), req)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":        true,
		"message":        "Appointment updated successfully",
		"appointment_id": a.AppointmentID,
	})
}

// UpdateStatus accepts the target status in a JSON body or as the
// status_update and cancellation_reason query parameters.
func (h *Handler) UpdateStatus(c echo.Context) error {
	var change StatusChange
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&change); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if change.Status == "" {
		change.Status = c.QueryParam("status_update")
	}
	if change.Reason == "" {
		change.Reason = c.QueryParam("cancellation_reason")
	}

	a, err := h.svc.UpdateStatus(c.Request().Context(), c.Param("appointment_id"), change)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":        true,
		"message":        "Appointment status updated to " + string(a.Status),
		"appointment_id": a.AppointmentID,
		"new_status":     a.Status,
	})
}

// listParam collects a filter given as repeated parameters, comma lists, or
// both.
func listParam(c echo.Context, name string) []string {
	var raw []string
	for _, v := range c.QueryParams()[name] {
		raw = append(raw, strings.Split(v, ",")...)
	}
	return lo.Uniq(lo.Compact(lo.Map(raw, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		DateFrom:    c.QueryParam("date_from"),
		DateTo:      c.QueryParam("date_to"),
		Statuses:    listParam(c, "status"),
		Types:       listParam(c, "type"),
		Departments: listParam(c, "department"),
		Location:    c.QueryParam("location"),
		PatientID:   c.QueryParam("patient_id"),
		DoctorID:    c.QueryParam("doctor_id"),
		Search:      c.QueryParam("search"),
		SortBy:      c.QueryParam("sort_by"),
		SortOrder:   c.QueryParam("sort_order"),
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetStats(c echo.Context) error {
	st, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"statistics": st,
	})
}
