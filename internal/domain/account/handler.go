package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the credential endpoints. Everything except /auth/me
// is public.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/register", h.Register)
	api.POST("/auth/token", h.Login)
	api.POST("/auth/forgot-password/otp", h.ForgotPassword)
	api.POST("/auth/reset-password/otp", h.ResetPassword)
	api.GET("/auth/me", h.Me)
}

func errorStatus(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusBadRequest, "Email already registered")
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, ErrInactiveUser):
		return echo.NewHTTPError(http.StatusForbidden,
			"Your account has been deactivated. Please contact administrator.")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "User not found")
	case errors.Is(err, ErrInvalidOTP):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid or expired OTP")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process account request")
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tok, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, tok)
}

func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RequestPasswordReset(c.Request().Context(), req); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "OTP sent successfully to your email"})
}

func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ResetPassword(c.Request().Context(), req); err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password reset successful using OTP"})
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.svc.Me(c.Request().Context())
	if err != nil {
		return errorStatus(err)
	}
	return c.JSON(http.StatusOK, u)
}
