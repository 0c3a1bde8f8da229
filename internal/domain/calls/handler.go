package calls

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthops/healthops/internal/platform/auth"
	"github.com/healthops/healthops/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts call routes. The telephony webhook and the voice
// agent's tool callbacks are public.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/calls/inbound", h.Inbound)
	api.POST("/calls/detect-intent", h.DetectIntent)
	api.POST("/healthcare/calls/detect-intent", h.DetectIntent)
	api.POST("/calls/save-summary", h.SaveSummary)
	api.POST("/calls/schedule-callback", h.ScheduleCallback)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
	staff.GET("/calls/start-healthcare-call", h.StartCall)
	staff.GET("/calls/call-logs", h.ListCallLogs)
	staff.GET("/calls/callbacks", h.ListCallbacks)
	staff.POST("/calls/callbacks/:callback_id/execute", h.ExecuteCallback)
	staff.GET("/calls/:call_id/summary", h.GetSummary)
}

func errorStatus(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrProvider):
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to create call with voice provider")
	case errors.Is(err, ErrCallbackNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Callback not found")
	case errors.Is(err, ErrSummaryNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Call summary not found")
	case errors.Is(err, ErrCallbackNotScheduled):
		return echo.NewHTTPError(http.StatusBadRequest, "Callback already executed or cancelled")
	case errors.Is(err, ErrCallbackNotDue):
		return echo.NewHTTPError(http.StatusBadRequest, "Callback is not due yet")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process call request")
}

func (h *Handler) Inbound(c echo.Context) error {
	call, err := h.svc.HandleInbound(c.Request().Context(), c.QueryParam("CallSid"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": call.JoinURL})
}

func (h *Handler) DetectIntent(c echo.Context) error {
	var req DetectIntentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.DetectIntent(c.Request().Context(), req)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"intent":      d.Intent,
		"confidence":  d.Confidence,
		"next_action": d.NextAction,
		"message":     d.Message,
	})
}

func (h *Handler) StartCall(c echo.Context) error {
	started, err := h.svc.StartCall(c.Request().Context(), c.QueryParam("phone_number"), c.QueryParam("call_type"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":          true,
		"join_url":         started.JoinURL,
		"ultravox_call_id": started.UltravoxCallID,
		"call_type":        started.CallType,
	})
}

func (h *Handler) SaveSummary(c echo.Context) error {
	var req SaveSummaryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sum, err := h.svc.SaveSummary(c.Request().Context(), req)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Call summary saved successfully",
		"call_id": sum.CallID,
	})
}

func (h *Handler) GetSummary(c echo.Context) error {
	body, err := h.svc.Summary(c.Request().Context(), c.Param("call_id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, body)
}

func (h *Handler) ScheduleCallback(c echo.Context) error {
	var req ScheduleCallbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cb, err := h.svc.ScheduleCallback(c.Request().Context(), req)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"message":       "Callback scheduled for " + cb.PatientName + " at " + cb.CallbackTime.Format("2006-01-02 15:04"),
		"callback_id":   cb.ID,
		"callback_time": cb.CallbackTime,
	})
}

func (h *Handler) ListCallbacks(c echo.Context) error {
	items, err := h.svc.Callbacks(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return errorStatus(err)
	}
	if items == nil {
		items = []*Callback{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"callbacks": items,
		"count":     len(items),
	})
}

func (h *Handler) ExecuteCallback(c echo.Context) error {
	cb, err := h.svc.ExecuteCallback(c.Request().Context(), c.Param("callback_id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"success":     true,
		"message":     "Callback execution started",
		"callback_id": cb.ID,
	})
}

func (h *Handler) ListCallLogs(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := LogFilter{
		CallType: c.QueryParam("call_type"),
		DateFrom: c.QueryParam("date_from"),
		DateTo:   c.QueryParam("date_to"),
	}
	items, total, err := h.svc.CallLogs(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return errorStatus(err)
	}
	if items == nil {
		items = []*CallLog{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
