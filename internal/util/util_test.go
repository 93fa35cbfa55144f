package util

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name       string
		err        error
		want       int
		retryAfter bool
	}{
		{"typed not found", NewNotFound("test", "t1"), http.StatusNotFound, false},
		{"wrapped invalid", fmt.Errorf("%w: testId is required", ErrInvalidSubmission), http.StatusBadRequest, false},
		{"attempt conflict", ErrAttemptConflict, http.StatusConflict, false},
		{"student busy", ErrStudentBusy, http.StatusConflict, false},
		{"permission", ErrPermissionDenied, http.StatusForbidden, false},
		{"transient persistence", &PersistenceError{Op: "save", Err: errors.New("deadlock"), Transient: true}, http.StatusServiceUnavailable, true},
		{"permanent persistence", &PersistenceError{Op: "save", Err: errors.New("disk full")}, http.StatusInternalServerError, false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
			RespondError(c, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if got := rec.Header().Get("Retry-After") != ""; got != tc.retryAfter {
				t.Errorf("Retry-After present = %v, want %v", got, tc.retryAfter)
			}
		})
	}
}

func TestErrorsChain(t *testing.T) {
	nf := NewNotFound("student profile", 42)
	if !errors.Is(nf, ErrNotFound) || nf.Error() != "student profile 42 not found" {
		t.Errorf("not found error = %v", nf)
	}

	inner := errors.New("lock wait timeout")
	pe := fmt.Errorf("scoring: %w", &PersistenceError{Op: "save", Err: inner, Transient: true})
	if !IsRetryable(pe) || !errors.Is(pe, inner) {
		t.Errorf("persistence error chain broken: %v", pe)
	}
	if IsRetryable(inner) || IsRetryable(nil) {
		t.Error("plain errors must not be retryable")
	}
}

func TestParseLimit(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", DefaultPageLimit},
		{"abc", DefaultPageLimit},
		{"-3", DefaultPageLimit},
		{"0", DefaultPageLimit},
		{"15", 15},
		{"1000", MaxPageLimit},
	}
	for _, tc := range cases {
		if got := ParseLimit(tc.in, DefaultPageLimit, MaxPageLimit); got != tc.want {
			t.Errorf("ParseLimit(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if MustParseUint("12") != 12 || MustParseUint("x") != 0 {
		t.Error("MustParseUint")
	}
}
