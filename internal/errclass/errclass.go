// Package errclass maps backend failures into the small set of error kinds
// shown to the operator.
package errclass

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"

	"github.com/Nao-Mk2/aws-log-browser/internal/model"
	"github.com/Nao-Mk2/aws-log-browser/internal/paginate"
)

// Kind is an error category.
type Kind int

const (
	TransientFailure Kind = iota
	AuthFailed
	PermissionDenied
	NotFound
	ValidationFailed
)

func (k Kind) String() string {
	switch k {
	case AuthFailed:
		return "AuthFailed"
	case PermissionDenied:
		return "PermissionDenied"
	case NotFound:
		return "NotFound"
	case ValidationFailed:
		return "ValidationFailed"
	default:
		return "TransientFailure"
	}
}

// MarshalText lets kinds appear by name in JSON.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Error is a classified failure with a message fit for display.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotFound may be wrapped by local collaborators (e.g. stores) to signal
// an absent entity.
var ErrNotFound = errors.New("not found")

var authCodes = map[string]bool{
	"UnrecognizedClientException": true,
	"InvalidSignatureException":   true,
	"SignatureDoesNotMatch":       true,
	"IncompleteSignature":         true,
	"InvalidClientTokenId":        true,
	"MissingAuthenticationToken":  true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
	"RequestExpired":              true,
}

var permissionCodes = map[string]bool{
	"AccessDeniedException": true,
	"AccessDenied":          true,
	"UnauthorizedOperation": true,
}

// Classify returns the kind of err. Unknown failures are TransientFailure.
// A *paginate.FetchFailed is classified by its cause.
func Classify(err error) Kind {
	if err == nil {
		return TransientFailure
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, model.ErrMissingGroup) {
		return ValidationFailed
	}
	if errors.Is(err, ErrNotFound) {
		return NotFound
	}
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return NotFound
	}
	var inv *types.InvalidParameterException
	if errors.As(err, &inv) {
		return ValidationFailed
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		code := ae.ErrorCode()
		switch {
		case authCodes[code]:
			return AuthFailed
		case permissionCodes[code]:
			return PermissionDenied
		case code == "ResourceNotFoundException":
			return NotFound
		}
		return TransientFailure
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return TransientFailure
	}
	// credential resolution fails before any request is signed
	msg := err.Error()
	if strings.Contains(msg, "failed to retrieve credentials") || strings.Contains(msg, "no valid providers in chain") {
		return AuthFailed
	}
	return TransientFailure
}

// Wrap classifies err and attaches a display message. A nil err stays nil.
// Aggregation failures keep the FetchFailed wrapper reachable through
// errors.As while the kind reflects the page's cause.
func Wrap(err error, action string) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	kind := Classify(err)
	msg := fmt.Sprintf("%s: %v", action, err)
	var ff *paginate.FetchFailed
	if errors.As(err, &ff) {
		msg = fmt.Sprintf("%s: %v", action, ff.Err)
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Validation builds a client-local ValidationFailed error.
func Validation(msg string) *Error {
	return &Error{Kind: ValidationFailed, Message: msg}
}

// IsFetchFailed reports whether err came from a failed aggregation.
func IsFetchFailed(err error) bool {
	var ff *paginate.FetchFailed
	return errors.As(err, &ff)
}

// HTTPStatus is the wire status for a kind: 401 for credential and
// permission rejections, 500 for everything else.
func HTTPStatus(k Kind) int {
	switch k {
	case AuthFailed, PermissionDenied:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
