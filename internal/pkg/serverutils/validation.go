package serverutils

import (
	"fmt"
	"strings"
	"sync"

	"coi-notes-be/internal/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("notblank", notBlank)
	})
	return validate
}

// RegisterStructValidation lets DTO packages add cross-field rules.
func RegisterStructValidation(fn validator.StructLevelFunc, types ...interface{}) {
	getValidator().RegisterStructValidation(fn, types...)
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ValidateRequest returns an INVALID_INPUT AppError listing every failed field.
func ValidateRequest(req interface{}) error {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperror.Wrap(apperror.CodeInvalidInput, "Invalid request", err)
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return &apperror.AppError{
		Code:    apperror.CodeInvalidInput,
		Message: strings.Join(msgs, "; "),
		Err:     err,
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", fe.Field())
	case "totalsize":
		return fmt.Sprintf("%s exceed the total size of %s", fe.Field(), fe.Param())
	case "mimetype":
		return fmt.Sprintf("unsupported attachment type %s", fe.Param())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
