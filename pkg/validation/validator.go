package validation

import (
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// emailShape accepts local@domain with no whitespace. Deliverability is
// proven by the verification email, not by the pattern.
var emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+$`)

// New returns a validator configured the same way as Gin's binding engine.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	configure(v)
	return v
}

// Init configures the global validator used by Gin's binding.
func Init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		configure(v)
	}
}

// configure makes errors use JSON tag names and registers the account aliases.
func configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("emailish", func(fl validator.FieldLevel) bool {
		return emailShape.MatchString(fl.Field().String())
	})
	v.RegisterAlias("pwd", "min=8")    // new password minimum length
	v.RegisterAlias("regpwd", "min=6") // registration password minimum length
}

// ToDetails converts validation/binding errors into a map[field]message suitable for API error.details.
func ToDetails(err error) map[string]string {
	if err == nil {
		return nil
	}

	// Invalid JSON payloads
	var se *json.SyntaxError
	var ute *json.UnmarshalTypeError
	if errors.As(err, &se) || errors.As(err, &ute) {
		return map[string]string{"payload": "invalid json"}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			out[fe.Field()] = formatFieldError(fe)
		}
		return out
	}

	// Fallback
	return map[string]string{"payload": "invalid payload"}
}

func formatFieldError(fe validator.FieldError) string {
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return "is required"
	case "email", "emailish":
		return "must be a valid email"
	case "pwd":
		return "must be at least 8 characters"
	case "regpwd":
		return "must be at least 6 characters"
	case "min":
		if fe.Kind() == reflect.String {
			return "must be at least " + param + " characters"
		}
		return "must be at least " + param
	case "max":
		if fe.Kind() == reflect.String {
			return "must be at most " + param + " characters"
		}
		return "must be at most " + param
	case "eqfield":
		return "must match " + jsonName(param)
	case "len":
		return "must be exactly " + param + " characters"
	case "hexadecimal":
		return "must be hexadecimal"
	default:
		return "is invalid"
	}
}

// jsonName lowers the Go field name carried in eqfield params.
func jsonName(field string) string {
	switch field {
	case "NewPassword":
		return "password"
	default:
		return strings.ToLower(field)
	}
}
