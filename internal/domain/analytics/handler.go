package analytics

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthops/healthops/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
	staff.GET("/healthcare/analytics/dashboard", h.GetDashboard)
}

func (h *Handler) GetDashboard(c echo.Context) error {
	d, err := h.svc.Dashboard(c.Request().Context(), c.QueryParam("date_from"), c.QueryParam("date_to"))
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Dashboard generation failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":        true,
		"date_range":     d.DateRange,
		"metrics":        d.Metrics,
		"call_analytics": d.CallAnalytics,
	})
}
