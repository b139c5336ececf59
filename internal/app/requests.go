package app

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names rather than Go field names.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

type loginRequest struct {
	Password string `json:"password" validate:"required,max=256"`
	Name     string `json:"name" validate:"omitempty,max=80"`
}

type themeRequest struct {
	ThemeID string `json:"themeId" validate:"required,max=64"`
}

type progressRequest struct {
	ModuleID string `json:"moduleId" validate:"required_without=TopicID,omitempty,max=128"`
	TopicID  string `json:"topicId" validate:"omitempty,max=128"`
}

type noteRequest struct {
	Note string `json:"note" validate:"max=20000"`
}
