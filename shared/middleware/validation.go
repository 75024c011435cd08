package middleware

import (
	"net/http"

	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/eaglebank/identity-service/shared/validation"
	"github.com/gin-gonic/gin"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Envelope is the body of every account endpoint response except the profile.
type Envelope struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Token   string              `json:"token,omitempty"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

func ValidateRequest(obj any) []apperr.FieldError {
	if verr := validation.Struct(obj); verr != nil {
		return verr.Fields
	}
	return nil
}

func RespondWithValidationError(c *gin.Context, validationErrors []apperr.FieldError) {
	c.JSON(http.StatusUnprocessableEntity, Envelope{
		Status:  StatusFail,
		Message: "Invalid request data",
		Details: validationErrors,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, Envelope{
		Status:  StatusFail,
		Message: message,
	})
}

func RespondWithSuccess(c *gin.Context, code int, message string) {
	c.JSON(code, Envelope{
		Status:  StatusSuccess,
		Message: message,
	})
}

func RespondWithToken(c *gin.Context, message, token string) {
	c.JSON(http.StatusOK, Envelope{
		Status:  StatusSuccess,
		Message: message,
		Token:   token,
	})
}
