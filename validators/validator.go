package validators

import (
	"net/http"
	"strings"

	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/targeting"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// CustomValidator plugs go-playground/validator into Echo
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates the request validator with the portal's custom tags
func NewValidator() *CustomValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		return p == "" || models.Priority(p).Valid()
	})
	v.RegisterValidation("target_type", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case targeting.TypeAllStudents, targeting.TypeAllTeachers, targeting.TypeSpecificYear,
			targeting.TypeSpecificSection, targeting.TypeHOD:
			return true
		}
		return false
	})
	v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", models.PlatformAndroid, models.PlatformIOS, models.PlatformWeb:
			return true
		}
		return false
	})
	return &CustomValidator{validator: v}
}

// Validate implements echo.Validator
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" failed on "+fe.Tag())
			}
		} else {
			fields = append(fields, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, strings.Join(fields, "; "))
	}
	return nil
}
