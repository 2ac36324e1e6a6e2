// Package schema validates OCPP 1.6 message payloads against the struct
// tags defined in internal/ocpp16: one shared *validator.Validate, with
// ValidationErrors translated into our own error taxonomy instead of
// leaking library types to callers.
package schema

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/vcperr"
)

var instance = validator.New()

// Validate checks a decoded payload against its struct tags. A failure is
// reported as a vcperr with Kind SchemaValidation whose Code is
// PropertyConstraintViolation or FormatViolation depending on which tag failed.
func Validate(payload interface{}) error {
	err := instance.Struct(payload)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return vcperr.Wrap(vcperr.SchemaValidation, "payload failed validation", err)
	}

	var msgs []string
	code := ocpp16ErrorCode(verrs)
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed '%s' (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}

	return &vcperr.VCPError{
		Kind:    vcperr.SchemaValidation,
		Message: strings.Join(msgs, "; "),
		Code:    code,
		Cause:   err,
	}
}

// ocpp16ErrorCode maps the first failing tag to the OCPP CallError code a
// handler should respond with: missing/required fields, length overruns,
// numeric bounds (gte/lte) and enum (oneof) failures are
// PropertyConstraintViolation; every other failing tag is FormatViolation.
func ocpp16ErrorCode(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return "FormatViolation"
	}
	switch verrs[0].Tag() {
	case "required", "max", "min", "gte", "lte", "oneof":
		return "PropertyConstraintViolation"
	default:
		return "FormatViolation"
	}
}
