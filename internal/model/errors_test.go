package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Is_MatchesByCode(t *testing.T) {
	err := NewAccountNotFoundError("acc-1")

	if !errors.Is(err, ErrAccountNotFound) {
		t.Error("expected errors.Is(err, ErrAccountNotFound) to be true")
	}
	if errors.Is(err, ErrStorageFailure) {
		t.Error("expected errors.Is(err, ErrStorageFailure) to be false")
	}
}

func TestAPIError_Is_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("set default: %w", NewAccountNotFoundError("acc-1"))

	if !errors.Is(err, ErrAccountNotFound) {
		t.Error("expected wrapped APIError to match ErrAccountNotFound")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("expected errors.As to find *APIError")
	}
	if apiErr.Category != "account" {
		t.Errorf("Category = %q, want %q", apiErr.Category, "account")
	}
}

func TestNewStorageFailureError_UnwrapsCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := NewStorageFailureError("set default", cause)

	if !errors.Is(err, ErrStorageFailure) {
		t.Error("expected STORAGE_FAILURE code")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), cause.Error()) {
		t.Errorf("Error() = %q, want it to contain cause %q", err.Error(), cause.Error())
	}
}

func TestNewPartialSweepFailureError_JoinsGroupErrors(t *testing.T) {
	e1 := errors.New("group a failed")
	e2 := errors.New("group b failed")
	err := NewPartialSweepFailureError(2, 5, errors.Join(e1, e2))

	if !errors.Is(err, ErrPartialSweepFailure) {
		t.Error("expected PARTIAL_SWEEP_FAILURE code")
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Error("expected every group error to be reachable")
	}
	if !strings.Contains(err.Message, "2/5") {
		t.Errorf("Message = %q, want failed/total counts", err.Message)
	}
}

func TestAPIError_ErrorWithoutCause(t *testing.T) {
	err := NewUserNotFoundError()
	want := "[USER_NOT_FOUND] ユーザーが見つかりません。"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAPIError_Retryable(t *testing.T) {
	err := NewStorageFailureError("reconcile group", errors.New("deadlock detected"))
	if err.Retryable() {
		t.Error("expected Retryable() to be false by default")
	}

	err.Temporary = true
	if !err.Retryable() {
		t.Error("expected Retryable() to be true when Temporary is set")
	}
}
