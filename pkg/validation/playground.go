package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/payflow/payflow/internal/core/graph"
)

// Validate is the shared validator instance with payflow rules registered
var Validate *validator.Validate

func init() {
	Validate = validator.New()

	Validate.RegisterValidation("node_kind", validateNodeKind)

	// Report JSON field names rather than Go field names
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidateWithPlayground validates s against its struct tags and, when s
// implements Validator, its own Validate method.
func ValidateWithPlayground(s interface{}) error {
	if err := Validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}
	if v, ok := s.(Validator); ok {
		return v.Validate()
	}
	return nil
}

func formatValidationErrors(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Namespace(),
			Value:   fe.Value(),
			Message: getErrorMessage(fe),
		})
	}
	return out
}

func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "nefield":
		return fmt.Sprintf("must differ from %s", fe.Param())
	case "node_kind":
		return "must be one of payment, location, gateway"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

func validateNodeKind(fl validator.FieldLevel) bool {
	return graph.NodeKind(fl.Field().String()).Valid()
}

// ValidationConfig holds validation configuration
type ValidationConfig struct {
	MaxErrors int `json:"max_errors"`
}

// DefaultValidationConfig returns default validation configuration
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{MaxErrors: 10}
}

// ValidateWithConfig validates and truncates the error list to config.MaxErrors
func ValidateWithConfig(s interface{}, config *ValidationConfig) error {
	if config == nil {
		config = DefaultValidationConfig()
	}

	err := ValidateWithPlayground(s)
	var verrs ValidationErrors
	if errors.As(err, &verrs) && config.MaxErrors > 0 && len(verrs) > config.MaxErrors {
		return verrs[:config.MaxErrors]
	}
	return err
}

type errorResponse struct {
	Errors []ValidationError `json:"errors"`
	Count  int               `json:"count"`
}

// MarshalValidationErrors marshals validation errors to JSON
func MarshalValidationErrors(errs ValidationErrors) ([]byte, error) {
	return json.Marshal(errorResponse{Errors: errs, Count: len(errs)})
}

// UnmarshalValidationErrors unmarshals validation errors from JSON
func UnmarshalValidationErrors(data []byte) (ValidationErrors, error) {
	var resp errorResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return ValidationErrors(resp.Errors), nil
}
