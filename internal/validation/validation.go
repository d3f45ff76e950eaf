// Package validation wraps go-playground/validator with the tags the sale
// and listing requests need.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with custom tags registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("rut", func(fl validator.FieldLevel) bool {
			return domain.ValidRut(fl.Field().String())
		})
		_ = v.RegisterValidation("phone_cl", func(fl validator.FieldLevel) bool {
			digits := 0
			for _, r := range fl.Field().String() {
				if r >= '0' && r <= '9' {
					digits++
				}
			}
			return digits >= 8 && digits <= 11
		})
		instance = v
	})
	return instance
}

// Error is a validation failure with one message per offending field.
type Error struct {
	Fields []string
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// Struct validates s and flattens validator errors into an *Error.
func Struct(s any) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &Error{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "rut":
		return fe.Field() + " is not a valid RUT"
	case "phone_cl":
		return fe.Field() + " is not a valid phone number"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min", "max", "gte", "lte":
		return fmt.Sprintf("%s fails %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}
