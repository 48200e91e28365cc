package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeUnauthorized, "test message", http.StatusUnauthorized),
			want: "[AUTH_2001] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_5001] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestTaxonomyStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want int
	}{
		{"validation maps to 400", Validation("bad email"), http.StatusBadRequest},
		{"unauthorized maps to 401", Unauthorized("invalid credentials"), http.StatusUnauthorized},
		{"conflict maps to 409", Conflict("account already exists"), http.StatusConflict},
		{"config maps to 500", Config("GATEWAY_JWT_SECRET is required"), http.StatusInternalServerError},
		{"internal maps to 500", Internal("persist failed", errors.New("io")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus_PlainError(t *testing.T) {
	if got := GetHTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("GetHTTPStatus() = %d, want %d", got, http.StatusInternalServerError)
	}
}

func TestIsCode(t *testing.T) {
	err := TransportDrop(errors.New("bad json"))
	if !IsCode(err, ErrCodeTransportDrop) {
		t.Error("IsCode should match ErrCodeTransportDrop")
	}
	if IsCode(err, ErrCodeUnauthorized) {
		t.Error("IsCode should not match ErrCodeUnauthorized")
	}
	if IsCode(errors.New("plain"), ErrCodeInternal) {
		t.Error("IsCode should be false for plain errors")
	}
}

func TestWithDetails(t *testing.T) {
	err := Validation("value out of range").
		WithDetails("field", "password").
		WithDetails("reason", "too short")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "password" {
		t.Errorf("Details[field] = %v, want password", err.Details["field"])
	}
}
