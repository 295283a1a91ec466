// Package validation wraps go-playground/validator with the service's custom
// tags and turns its errors into domain errors.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	dErrors "didgate/pkg/domain-errors"
)

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Validate checks req against its struct tags. The returned domain error
// carries CodeValidation and a "field" detail naming the first bad field.
func Validate(req any) error {
	err := defaultValidator.Struct(req)
	if err == nil {
		return nil
	}
	derr := dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	if field := Field(err); field != "" {
		return dErrors.WithDetail(derr, "field", field)
	}
	return derr
}

// Field returns the snake_case name of the first failing field, or "".
func Field(err error) string {
	fe, ok := firstFieldError(err)
	if !ok {
		return ""
	}
	name := fe.Field()
	if name == "" {
		name = fe.StructField()
	}
	return snakeCase(name)
}

// ErrorMessage converts a validator error into a human-readable message.
func ErrorMessage(err error) string {
	fe, ok := firstFieldError(err)
	if !ok {
		return "invalid request body"
	}
	field := Field(err)

	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	default:
		if field == "" {
			return "invalid request body"
		}
		return fmt.Sprintf("%s is invalid", field)
	}
}

func firstFieldError(err error) (validator.FieldError, bool) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return nil, false
	}
	return validationErrs[0], true
}

// snakeCase maps Go field names onto form field names (InputDigest -> input_digest).
func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 &&
			(unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
