package httpserver

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

type RequestValidator struct {
	validate *validator.Validate
}

func NewValidator() *RequestValidator {
	v := validator.New()
	// lowercase, uppercase and digit required, on top of the min length tag
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		var hasLower, hasUpper, hasDigit bool
		for _, r := range fl.Field().String() {
			switch {
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsDigit(r):
				hasDigit = true
			}
		}
		return hasLower && hasUpper && hasDigit
	})
	return &RequestValidator{validate: v}
}

func (v *RequestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}
