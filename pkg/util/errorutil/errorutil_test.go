package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestToDomainError_WrapsUnknownAsInternal(t *testing.T) {
	err := ToDomainError(errors.New("connection reset by peer"))
	if err.Kind != KindInternal {
		t.Fatalf("expected internal kind, got %s", err.Kind)
	}
	if err.Message != "internal server error" {
		t.Errorf("internal message leaked details: %q", err.Message)
	}
	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", err.HTTPStatus)
	}
}

func TestToDomainError_KeepsWrappedDomainError(t *testing.T) {
	wrapped := fmt.Errorf("update ticket: %w", NewStaleUpdate("t-1"))
	err := ToDomainError(wrapped)
	if err.Code != "CONCURRENT_MODIFICATION" {
		t.Fatalf("expected stale update code, got %s", err.Code)
	}
	if !IsConflict(wrapped) {
		t.Errorf("expected wrapped stale update to be a conflict")
	}
}

func TestKindPredicates(t *testing.T) {
	cases := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"not found", NewNotFound("ticket", nil), IsNotFound},
		{"forbidden", NewForbidden("nope"), IsForbidden},
		{"invalid transition", NewInvalidTransition("OPEN", "REOPENED"), IsConflict},
		{"transient", NewTransient(errors.New("timeout")), IsTransient},
	}
	for _, tc := range cases {
		if !tc.pred(tc.err) {
			t.Errorf("%s: predicate returned false", tc.name)
		}
	}
	if IsConflict(errors.New("plain")) {
		t.Errorf("plain errors must not classify as conflict")
	}
}

func TestInvalidTransitionMessage(t *testing.T) {
	err := ToDomainError(NewInvalidTransition("CLOSED", "IN_PROGRESS"))
	if err.Message != "cannot perform this action in the current state" {
		t.Errorf("unexpected message %q", err.Message)
	}
	if err.Details["from"] != "CLOSED" || err.Details["to"] != "IN_PROGRESS" {
		t.Errorf("unexpected details %#v", err.Details)
	}
}
