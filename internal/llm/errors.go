package llm

import (
	"errors"
	"strings"
)

type Kind int

const (
	KindGeneric Kind = iota
	KindMissingCredential
	KindInvalidCredential
	KindQuotaExceeded
	KindPermissionDenied
	KindModelUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindMissingCredential:
		return "missing_credential"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindPermissionDenied:
		return "permission_denied"
	case KindModelUnavailable:
		return "model_unavailable"
	default:
		return "generic"
	}
}

// Error is what the gateway returns. Message is fit to show the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can test against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingCredential = &Error{Kind: KindMissingCredential, Message: "API token is required"}
	ErrInvalidCredential = &Error{Kind: KindInvalidCredential, Message: "Invalid API key. Please check your Gemini API token."}
	ErrQuotaExceeded     = &Error{Kind: KindQuotaExceeded, Message: "API quota exceeded. Please try again later."}
	ErrPermissionDenied  = &Error{Kind: KindPermissionDenied, Message: "Permission denied. Please check your API token permissions."}
	ErrModelUnavailable  = &Error{Kind: KindModelUnavailable, Message: "Model not available. Please try a different model or check your API access."}
)

// Checked in order; the first hit wins because provider errors often
// mention several of these at once.
var classifiers = []struct {
	substr string
	tmpl   *Error
}{
	{"api key", ErrInvalidCredential},
	{"quota", ErrQuotaExceeded},
	{"permission", ErrPermissionDenied},
	{"model", ErrModelUnavailable},
}

// Classify maps a provider or transport error onto the error taxonomy.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}

	text := strings.ToLower(err.Error())
	for _, c := range classifiers {
		if strings.Contains(text, c.substr) {
			return &Error{Kind: c.tmpl.Kind, Message: c.tmpl.Message, Err: err}
		}
	}
	return &Error{Kind: KindGeneric, Message: err.Error(), Err: err}
}

// KindOf reports the Kind of err, KindGeneric for foreign errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindGeneric
}
