package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// FormatError formats an Error for display on the command line
func FormatError(err *Error) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	switch err.Type {
	case ErrorTypeValidation:
		sb.WriteString("✗ Validation Error: ")
	case ErrorTypeUpstream, ErrorTypeUnexpectedShape:
		sb.WriteString("✗ GitLab Error: ")
	case ErrorTypeNetwork, ErrorTypeGatewayTimeout:
		sb.WriteString("✗ Network Error: ")
	case ErrorTypePartialRename:
		sb.WriteString("✗ Partial Rename: ")
	case ErrorTypeConfig:
		sb.WriteString("✗ Configuration Error: ")
	default:
		sb.WriteString("✗ Error: ")
	}

	sb.WriteString(err.Err.Error())

	if err.Context != "" {
		sb.WriteString("\n\n")
		sb.WriteString(err.Context)
	}

	return sb.String()
}

// FormatSimple formats any error, typed or not
func FormatSimple(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if stderrors.As(err, &e) {
		return FormatError(e)
	}

	return fmt.Sprintf("✗ Error: %v", err)
}

// Payload is the JSON body the REST facade answers errors with.
type Payload struct {
	Error  string `json:"error"`
	Type   string `json:"type,omitempty"`
	Status int    `json:"status,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// ToPayload converts err into its JSON error body.
func ToPayload(err error) Payload {
	var e *Error
	if !stderrors.As(err, &e) {
		return Payload{Error: err.Error()}
	}
	p := Payload{
		Error: e.Error(),
		Type:  e.Type.String(),
	}
	switch e.Type {
	case ErrorTypeUpstream:
		p.Status = e.Status
		p.Detail = e.Body
	case ErrorTypePartialRename:
		p.Detail = e.Body
	}
	return p
}
