// Package validator provides custom validation functions for Gin's binding engine.
package validator

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"khata/internal/models"
)

// Register registers all custom validators with the Gin binding engine.
func Register() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("tx_status", validateStatus)
		_ = v.RegisterValidation("category", validateCategory)
		_ = v.RegisterValidation("owner", validateOwner)
		_ = v.RegisterValidation("iso_date", validateISODate)
	}
}

func validateStatus(fl validator.FieldLevel) bool {
	return models.Status(fl.Field().String()).IsValid()
}

func validateCategory(fl validator.FieldLevel) bool {
	return models.ValidCategory(fl.Field().String())
}

func validateOwner(fl validator.FieldLevel) bool {
	return models.ValidOwner(fl.Field().String())
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse("2006-01-02", fl.Field().String())
	return err == nil
}
