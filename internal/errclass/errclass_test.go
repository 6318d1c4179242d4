package errclass

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/smithy-go"

	"github.com/Nao-Mk2/aws-log-browser/internal/model"
	"github.com/Nao-Mk2/aws-log-browser/internal/paginate"
)

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "rejected"}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unrecognized-client", apiErr("UnrecognizedClientException"), AuthFailed},
		{"bad-signature", apiErr("InvalidSignatureException"), AuthFailed},
		{"expired-token", apiErr("ExpiredTokenException"), AuthFailed},
		{"access-denied", apiErr("AccessDeniedException"), PermissionDenied},
		{"not-found-code", apiErr("ResourceNotFoundException"), NotFound},
		{"not-found-typed", &types.ResourceNotFoundException{Message: aws.String("group missing")}, NotFound},
		{"invalid-parameter", &types.InvalidParameterException{Message: aws.String("bad")}, ValidationFailed},
		{"throttled", apiErr("ThrottlingException"), TransientFailure},
		{"service-unavailable", apiErr("ServiceUnavailableException"), TransientFailure},
		{"missing-group", fmt.Errorf("search: %w", model.ErrMissingGroup), ValidationFailed},
		{"local-not-found", fmt.Errorf("export abc: %w", ErrNotFound), NotFound},
		{"credentials", errors.New("operation error CloudWatch Logs: failed to retrieve credentials"), AuthFailed},
		{"deadline", context.DeadlineExceeded, TransientFailure},
		{"plain", errors.New("connection reset by peer"), TransientFailure},
		{"nil", nil, TransientFailure},
		{"fetch-failed-uses-cause", &paginate.FetchFailed{Page: 3, Err: apiErr("AccessDeniedException")}, PermissionDenied},
		{"already-classified", Validation("missing group"), ValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v)=%v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Fatalf("Wrap(nil) must be nil")
	}
	ff := &paginate.FetchFailed{Page: 1, Err: apiErr("UnrecognizedClientException")}
	got := Wrap(ff, "list groups")
	if got.Kind != AuthFailed {
		t.Fatalf("kind=%v, want AuthFailed", got.Kind)
	}
	if !IsFetchFailed(got) {
		t.Fatalf("FetchFailed wrapper must stay reachable")
	}
	again := Wrap(got, "other action")
	if again != got {
		t.Fatalf("classified errors must not be re-wrapped")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{AuthFailed, http.StatusUnauthorized},
		{PermissionDenied, http.StatusUnauthorized},
		{NotFound, http.StatusInternalServerError},
		{TransientFailure, http.StatusInternalServerError},
		{ValidationFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := HTTPStatus(tt.kind); got != tt.want {
				t.Fatalf("HTTPStatus(%v)=%d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}
