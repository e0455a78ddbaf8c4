package examgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrIndexUnavailable means the similarity index could not be reached or
	// the target collection does not exist. Fatal for the current invocation.
	ErrIndexUnavailable = errors.New("similarity index unavailable")

	// ErrMissingCredential means a required external-service key is absent
	ErrMissingCredential = errors.New("missing credential")

	// ErrInvalidParams wraps GenerationParams validation failures
	ErrInvalidParams = errors.New("invalid generation parameters")

	// ErrTemplateField means a prompt template referenced a placeholder
	// with no value
	ErrTemplateField = errors.New("unresolved template field")
)

var validate = validator.New()

// Validate checks the parameter enums and bounds
func (p GenerationParams) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", strings.ToLower(fe.Field()), fe.Param(), fe.Value()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", strings.ToLower(fe.Field()), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(msgs, "; "))
}
