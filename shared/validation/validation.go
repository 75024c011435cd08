// Package validation runs struct-tag validation for request and command types
// and reports failures as *apperr.ValidationError.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/eaglebank/identity-service/shared/apperr"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	return v
}

// Struct validates obj and returns nil when it is valid.
func Struct(obj any) *apperr.ValidationError {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.NewValidationError("", "invalid", err.Error())
	}

	var out *apperr.ValidationError
	for _, fe := range fieldErrs {
		out = out.Append(fe.Field(), fe.Tag(), message(fe))
	}
	return out
}

func message(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "len":
		return "Value must be exactly " + err.Param() + " characters"
	case "numeric":
		return "Value must be numeric"
	default:
		return "Invalid value"
	}
}
