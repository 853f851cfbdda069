package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance for message payloads.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// Decode unmarshals a message payload into data and validates it. An empty
// payload decodes to the zero value, which still must pass validation.
func Decode[T any](msg *Message, data *T) error {
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, data); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
	}

	if err := validate.Struct(data); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			parts := make([]string, 0, len(verrs))
			for _, e := range verrs {
				parts = append(parts, e.Field()+" "+formatValidationMessage(e))
			}
			return fmt.Errorf("validation failed: %s", strings.Join(parts, "; "))
		}
		return err
	}
	return nil
}

// formatValidationMessage creates a human-readable message from a validator error.
func formatValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "uuid4":
		return "must be a valid id"
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
