package identity

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

// RegisterRoutes mounts patient routes. /patients/create and /patients/search
// are called by the voice agent without a token.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients/create", h.CreatePatient)
	api.POST("/patients/search", h.SearchPatient)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleStaff))
	staff.POST("/healthcare/patients", h.CreatePatient)
	staff.GET("/healthcare/patients", h.ListPatients)
	staff.GET("/healthcare/patients/:patient_id", h.GetPatient)
	staff.GET("/patients/:patient_id", h.GetPatient)
	staff.PUT("/patients/:patient_id", h.UpdatePatient)
	staff.DELETE("/patients/:patient_id", h.DeactivatePatient)
}

// errorStatus maps service errors onto HTTP errors.
func errorStatus(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, "Validation error: "+verr.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrResolverUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Patient registry is temporarily unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process patient request")
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req RegistrationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CreatedBy == "" {
		req.CreatedBy = auth.EmailFromContext(c.Request().Context())
	}

	res, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"success":          false,
				"message":          "Patient already exists in our system",
				"patient_id":       dup.PatientID,
				"existing_patient": true,
				"duplicate_type":   MatchExact,
			})
		}
		return errorStatus(err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":             true,
		"message":             "Patient created successfully",
		"patient_id":          res.Patient.PatientID,
		"existing_patient":    false,
		"family_member_match": res.FamilyMemberMatch,
		"patient":             res.Patient,
	})
}

func (h *Handler) SearchPatient(c echo.Context) error {
	var q Query
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Search(c.Request().Context(), q)
	if err != nil {
		return errorStatus(err)
	}
	if p == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"found":   false,
			"message": "No matching patient found",
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"found":   true,
		"patient": p,
	})
}

func (h *Handler) GetPatient(c echo.Context) error {
	d, err := h.svc.Get(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var u PatientUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Update(c.Request().Context(), c.Param("patient_id"), u)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Patient updated successfully",
		"patient": p,
	})
}

func (h *Handler) DeactivatePatient(c echo.Context) error {
	if err := h.svc.Deactivate(c.Request().Context(), c.Param("patient_id")); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "Patient deactivated successfully",
		"patient_id": c.Param("patient_id"),
	})
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{Search: c.QueryParam("search"), Location: c.QueryParam("location")}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list patients")
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
