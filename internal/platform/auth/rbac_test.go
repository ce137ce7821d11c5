package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		granted []string
		require []string
		allowed bool
	}{
		{"staff on staff route", []string{RoleStaff}, []string{RoleStaff}, true},
		{"admin passes everything", []string{RoleAdmin}, []string{RolePatient}, true},
		{"patient on staff route", []string{RolePatient}, []string{RoleStaff}, false},
		{"any of several", []string{RolePatient}, []string{RoleStaff, RolePatient}, true},
		{"no roles", nil, []string{RoleStaff}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			ctx := context.WithValue(req.Context(), UserRolesKey, tt.granted)
			req = req.WithContext(ctx)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequireRole(tt.require...)(okHandler)(c)
			if tt.allowed {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				if rec.Code != http.StatusOK {
					t.Errorf("expected 200, got %d", rec.Code)
				}
				return
			}
			expectStatus(t, err, http.StatusForbidden)
		})
	}
}
