package catalog

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/teranos/catalog/errors"
	"github.com/teranos/catalog/types"
)

// entityValidate checks the validate tags on the catalog types.
// Field names in failures are the JSON names.
var entityValidate *validator.Validate

func init() {
	entityValidate = validator.New()
	entityValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = entityValidate.RegisterValidation("notblank", validateNotBlank)
}

// validateNotBlank rejects empty and whitespace-only strings
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ValidateEpoch checks an epoch built outside CreateEpoch, such as one read
// from an export. Name uniqueness is left to the store.
func ValidateEpoch(e *types.Epoch) error {
	if e == nil {
		return errors.NewValidationError("epoch must not be nil")
	}
	return validateEntity("epoch", e.ID, e)
}

// validateEntity runs the struct tags of v and reports the first failing field as a ValidationError
func validateEntity(kind, id string, v interface{}) error {
	err := entityValidate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Mark(errors.Wrapf(err, "invalid %s %q", kind, id), errors.ErrValidation)
	}

	fe := fieldErrs[0]
	var reason string
	switch fe.Tag() {
	case "notblank":
		reason = "must not be empty"
	case "oneof":
		reason = fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "gte":
		reason = "must be >= " + fe.Param()
	default:
		reason = "failed " + fe.Tag()
	}

	verr := errors.NewValidationError("invalid %s %q: %s %s", kind, id, fe.Field(), reason)
	if len(fieldErrs) > 1 {
		verr = errors.WithDetailf(verr, "%d more invalid fields", len(fieldErrs)-1)
	}
	return verr
}
