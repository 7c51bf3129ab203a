package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/d4ckard/shuttle/pkg/project"
)

// Validate checks the configuration for invalid values.
//
// Struct tags cover ranges and enumerations; cross-field rules that tags
// cannot express are checked explicitly.
func Validate(cfg *Config) error {
	if err := newValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %w", verrs)
		}
		return err
	}

	if _, err := project.NewName(cfg.Project); err != nil {
		return err
	}

	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	// project_name mirrors project.ValidName so tag-level errors name the
	// offending field.
	_ = v.RegisterValidation("project_name", func(fl validator.FieldLevel) bool {
		return project.ValidName(fl.Field().String())
	})
	return v
}
