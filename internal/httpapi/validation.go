// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package httpapi

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/skycast/skycast/internal/auth"
)

var registerValidators = sync.OnceValue(func() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	if err := v.RegisterValidation("emailaddr", func(fl validator.FieldLevel) bool {
		return auth.IsValidEmail(auth.NormalizeEmail(fl.Field().String()))
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
		return auth.IsStrongPassword(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("ulid", func(fl validator.FieldLevel) bool {
		return isULID(fl.Field().String())
	})
})

func jsonFieldName(fe validator.FieldError) string {
	if name := fe.Field(); name != "" {
		return name
	}
	return strings.ToLower(fe.StructField())
}

func validationReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "emailaddr":
		return "must be a valid email address"
	case "strongpassword":
		return "must be at least 8 characters with upper and lower case letters and a digit"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "ulid":
		return "must be a valid id"
	}
	return "is invalid"
}
