package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/eaglebank/identity-service/shared/cqrs"
	"github.com/eaglebank/identity-service/shared/middleware"
	"github.com/eaglebank/identity-service/shared/models"
	"github.com/gin-gonic/gin"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	Register(context.Context, cqrs.RegisterCommand) (*models.Account, error)
	UpdateProfile(context.Context, cqrs.UpdateProfileCommand) (*models.AccountView, error)
	Logout(context.Context, cqrs.LogoutCommand) error
	RequestOtp(context.Context, cqrs.RequestOtpCommand) error
	VerifyOtp(context.Context, cqrs.VerifyOtpCommand) (string, error)
	ResetPassword(context.Context, cqrs.ResetPasswordCommand) error
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	Login(context.Context, cqrs.LoginCommand) (string, error)
	GetProfile(context.Context, cqrs.GetProfileQuery) (*models.AccountView, error)
}

// AccountHandler routes requests to the command or query service as appropriate.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=30"`
	Email    string `json:"email" validate:"required,email,max=30"`
	Mobile   string `json:"mobile" validate:"required,max=30"`
	Password string `json:"password" validate:"required,max=30"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=30"`
	Password string `json:"password" validate:"required,max=30"`
}

type UpdateProfileRequest struct {
	Name   string `json:"name" validate:"required,max=30"`
	Email  string `json:"email" validate:"required,email,max=30"`
	Mobile string `json:"mobile" validate:"required,max=30"`
}

type OtpRequest struct {
	Email string `json:"email" validate:"required,email,max=30"`
}

type VerifyOtpRequest struct {
	Email string `json:"email" validate:"required,email,max=30"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6,max=30"`
}

// errorMessages overrides the client-facing message for the error kinds whose
// wording depends on the endpoint.
type errorMessages struct {
	unauthorized string
	notFound     string
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}

	_, err := h.commands.Register(c.Request.Context(), cqrs.RegisterCommand{
		Name:     req.Name,
		Email:    req.Email,
		Mobile:   req.Mobile,
		Password: req.Password,
	})
	if err != nil {
		respondWithServiceError(c, err, errorMessages{})
		return
	}

	middleware.RespondWithSuccess(c, http.StatusCreated, "User signed up successfully!")
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.queries.Login(c.Request.Context(), cqrs.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondWithServiceError(c, err, errorMessages{unauthorized: "Invalid email or password"})
		return
	}

	middleware.RespondWithToken(c, "Login successful", token)
}

func (h *AccountHandler) GetProfile(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	view, err := h.queries.GetProfile(c.Request.Context(), cqrs.GetProfileQuery{AccountID: principal.AccountID})
	if err != nil {
		respondWithServiceError(c, err, errorMessages{notFound: "Account not found"})
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) Logout(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}

	if err := h.commands.Logout(c.Request.Context(), cqrs.LogoutCommand{AccountID: principal.AccountID}); err != nil {
		respondWithServiceError(c, err, errorMessages{})
		return
	}

	middleware.RespondWithSuccess(c, http.StatusOK, "Logged out successfully")
}

func (h *AccountHandler) UpdateProfile(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	_, err := h.commands.UpdateProfile(c.Request.Context(), cqrs.UpdateProfileCommand{
		AccountID: principal.AccountID,
		Name:      req.Name,
		Email:     req.Email,
		Mobile:    req.Mobile,
	})
	if err != nil {
		respondWithServiceError(c, err, errorMessages{notFound: "Account not found"})
		return
	}

	middleware.RespondWithSuccess(c, http.StatusOK, "Profile updated successfully")
}

func (h *AccountHandler) RequestOtp(c *gin.Context) {
	var req OtpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.commands.RequestOtp(c.Request.Context(), cqrs.RequestOtpCommand{Email: req.Email}); err != nil {
		respondWithServiceError(c, err, errorMessages{notFound: "Email not found"})
		return
	}

	middleware.RespondWithSuccess(c, http.StatusOK, "OTP sent successfully")
}

func (h *AccountHandler) VerifyOtp(c *gin.Context) {
	var req VerifyOtpRequest
	if !bindAndValidate(c, &req) {
		return
	}

	token, err := h.commands.VerifyOtp(c.Request.Context(), cqrs.VerifyOtpCommand{
		Email: req.Email,
		OTP:   req.OTP,
	})
	if err != nil {
		respondWithServiceError(c, err, errorMessages{unauthorized: "Invalid OTP"})
		return
	}

	middleware.RespondWithToken(c, "OTP verified successfully", token)
}

func (h *AccountHandler) ResetPassword(c *gin.Context) {
	principal, ok := principalOrAbort(c)
	if !ok {
		return
	}
	var req ResetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.commands.ResetPassword(c.Request.Context(), cqrs.ResetPasswordCommand{
		AccountID: principal.AccountID,
		Password:  req.Password,
	})
	if err != nil {
		respondWithServiceError(c, err, errorMessages{notFound: "Account not found"})
		return
	}

	middleware.RespondWithSuccess(c, http.StatusOK, "Password updated successfully")
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bindAndValidate decodes the JSON body into req and runs its validate tags.
// It writes the failure response itself and reports whether to continue.
func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}

func principalOrAbort(c *gin.Context) (*models.Principal, bool) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "User not authenticated")
		return nil, false
	}
	return principal, true
}

// respondWithServiceError is the single place service errors become HTTP
// responses. Unknown errors are logged and reported as a bare 500.
func respondWithServiceError(c *gin.Context, err error, msgs errorMessages) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		middleware.RespondWithValidationError(c, verr.Fields)
	case errors.Is(err, apperr.ErrValidation):
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, "Invalid request data")
	case errors.Is(err, apperr.ErrUnauthorized):
		middleware.RespondWithError(c, http.StatusUnauthorized, orDefault(msgs.unauthorized, "Unauthorized"))
	case errors.Is(err, apperr.ErrNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, orDefault(msgs.notFound, "Not found"))
	case errors.Is(err, apperr.ErrNotificationFailed):
		middleware.RespondWithError(c, http.StatusBadGateway, "Failed to send OTP")
	default:
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		middleware.RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
