package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/doseledger/doseledger/internal/config"
	"github.com/doseledger/doseledger/internal/domain/dosing"
	"github.com/doseledger/doseledger/internal/domain/finance"
	"github.com/doseledger/doseledger/internal/domain/patient"
	"github.com/doseledger/doseledger/internal/platform/auth"
	"github.com/doseledger/doseledger/internal/platform/cache"
	"github.com/doseledger/doseledger/internal/platform/middleware"
	"github.com/doseledger/doseledger/pkg/calendar"
	"github.com/doseledger/doseledger/pkg/money"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func testConfig(env string) *config.Config {
	return &config.Config{
		Port:                "8000",
		Env:                 env,
		LogLevel:            "info",
		DatabaseURL:         "postgres://localhost/doseledger",
		AuthSigningKey:      testSigningKey,
		CORSOrigins:         []string{"http://localhost:5173"},
		ClinicTimezone:      "America/Sao_Paulo",
		SavingsThresholdMg:  2.5,
		SavingsDosesPerBox:  4,
		SavingsConsultPrice: 800,
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func testServices(pingErr error) *services {
	return &services{
		patients: patient.NewService(nil, nil),
		dosing:   dosing.NewService(nil, nil),
		finance:  finance.NewService(nil, nil, nil, nil, nil),
		db:       fakePinger{err: pingErr},
	}
}

func serve(t *testing.T, cfg *config.Config, svc *services, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	e := newRouter(cfg, zerolog.Nop(), svc)
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNewLogger_Level(t *testing.T) {
	cfg := testConfig("production")
	cfg.LogLevel = "DEBUG"
	if got := newLogger(cfg).GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", got)
	}

	cfg.LogLevel = "nonsense"
	if got := newLogger(cfg).GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("level = %v, want info for an unknown level", got)
	}

	if got := newLogger(nil).GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("nil config level = %v, want info", got)
	}
}

func TestPoolConfig(t *testing.T) {
	cfg := testConfig("production")
	cfg.DBMaxConns = 7
	cfg.DBMinConns = 1
	pc := poolConfig(cfg)
	if pc.URL != cfg.DatabaseURL || pc.MaxConns != 7 || pc.MinConns != 1 {
		t.Errorf("unexpected pool config %+v", pc)
	}
	if pc.AppName != "doseledger" {
		t.Errorf("AppName = %q", pc.AppName)
	}
}

func TestSavingsParams(t *testing.T) {
	cfg := testConfig("production")
	cfg.SavingsThresholdMg = 5
	cfg.SavingsDosesPerBox = 2
	cfg.SavingsConsultPrice = 650.5

	p := savingsParams(cfg)
	if p.ThresholdMg != 5 {
		t.Errorf("ThresholdMg = %v, want 5", p.ThresholdMg)
	}
	if p.DosesPerBox != 2 {
		t.Errorf("DosesPerBox = %d, want 2", p.DosesPerBox)
	}
	if p.ConsultPrice != money.FromFloat(650.5) {
		t.Errorf("ConsultPrice = %s", p.ConsultPrice)
	}
	if len(p.Tiers) != len(finance.DefaultSavingsParams().Tiers) {
		t.Errorf("tiers should keep their defaults")
	}
}

func TestSavingsParams_ZeroConsultPrice(t *testing.T) {
	cfg := testConfig("production")
	cfg.SavingsConsultPrice = 0
	if p := savingsParams(cfg); p.ConsultPrice != 0 {
		t.Errorf("ConsultPrice = %s, want zero", p.ConsultPrice)
	}
}

func TestRateLimitConfig(t *testing.T) {
	cfg := testConfig("production")
	rl := rateLimitConfig(cfg)
	if rl.RequestsPerSecond != 50 || rl.BurstSize != 100 {
		t.Errorf("defaults not applied: %+v", rl)
	}

	cfg.RateLimitRPS = 5
	cfg.RateLimitBurst = 10
	rl = rateLimitConfig(cfg)
	if rl.RequestsPerSecond != 5 || rl.BurstSize != 10 {
		t.Errorf("overrides not applied: %+v", rl)
	}
}

func TestIssueToken_Validation(t *testing.T) {
	cfg := testConfig("production")

	if _, err := issueToken(cfg, "", []string{auth.RoleStaff}, time.Hour); err == nil {
		t.Error("expected error for empty subject")
	}
	if _, err := issueToken(cfg, "nurse-1", []string{"physician"}, time.Hour); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := issueToken(cfg, "not-a-uuid", []string{auth.RolePatient}, time.Hour); err == nil {
		t.Error("expected error for a patient token without a patient id")
	}

	tok, err := issueToken(cfg, uuid.NewString(), []string{auth.RolePatient}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(tok, ".") != 2 {
		t.Errorf("token %q is not a JWS", tok)
	}
}

func TestObtainLock(t *testing.T) {
	ctx := context.Background()
	locks := cache.NewMemory()

	cleaned := 0
	release, err := obtainLock(ctx, locks, migrateLockKey, time.Minute, func() { cleaned++ })
	if err != nil {
		t.Fatalf("first obtain: %v", err)
	}

	if _, err := obtainLock(ctx, locks, migrateLockKey, time.Minute, func() { cleaned++ }); err == nil {
		t.Fatal("expected second obtain to fail while the lock is held")
	} else if !strings.Contains(err.Error(), "another migration") {
		t.Errorf("unexpected error: %v", err)
	}
	if cleaned != 1 {
		t.Errorf("cleanup calls = %d, want 1 after the failed obtain", cleaned)
	}

	release()
	if cleaned != 2 {
		t.Errorf("cleanup calls = %d, want 2 after release", cleaned)
	}

	release, err = obtainLock(ctx, locks, migrateLockKey, time.Minute, func() {})
	if err != nil {
		t.Fatalf("obtain after release: %v", err)
	}
	release()
}

func TestRouter_Health(t *testing.T) {
	rec := serve(t, testConfig("production"), testServices(nil), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), version) {
		t.Errorf("body %q should carry the version", rec.Body.String())
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestRouter_HealthDB(t *testing.T) {
	rec := serve(t, testConfig("production"), testServices(errors.New("down")), http.MethodGet, "/health/db", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	rec := serve(t, testConfig("production"), testServices(nil), http.MethodGet, "/api/v1/dashboard/finance", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_PatientTokenCannotReachStaffRoutes(t *testing.T) {
	cfg := testConfig("production")
	tok, err := issueToken(cfg, uuid.NewString(), []string{auth.RolePatient}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"/api/v1/dashboard/finance", "/api/v1/financial-records", "/api/v1/patients"} {
		rec := serve(t, cfg, testServices(nil), http.MethodGet, path, tok)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want 403", path, rec.Code)
		}
	}
}

func TestRouter_StaffTokenCannotReachPortal(t *testing.T) {
	cfg := testConfig("production")
	tok, err := issueToken(cfg, "reception", []string{auth.RoleStaff}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rec := serve(t, cfg, testServices(nil), http.MethodGet, "/api/v1/portal/summary", tok)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRouter_Routes(t *testing.T) {
	e := newRouter(testConfig("production"), zerolog.Nop(), testServices(nil))
	routes := map[string]bool{}
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, k := range []string{
		"POST /api/v1/injections",
		"POST /api/v1/injections/:id/pay",
		"GET /api/v1/financial-records/export.xlsx",
		"POST /api/v1/financial-records/:id/approve",
		"GET /api/v1/dashboard/finance",
		"GET /api/v1/dashboard/debtors",
		"POST /api/v1/portal/payment-confirmations",
		"GET /api/v1/medications/:id/quote",
		"POST /api/v1/patients/:id/portal-access",
	} {
		if !routes[k] {
			t.Errorf("route %s not registered", k)
		}
	}
}

func TestPrintMonths(t *testing.T) {
	d := calendar.Date{Year: 2024, Month: 2, Day: 10}
	groups := finance.GroupByMonth([]*finance.Record{
		{ID: uuid.New(), Amount: money.FromCents(30000), DueDate: d, Status: finance.StatusPaid},
		{ID: uuid.New(), Amount: money.FromCents(10000), DueDate: d, Status: finance.StatusPending},
	})

	var buf bytes.Buffer
	if err := printMonths(&buf, groups); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Fevereiro de 2024") {
		t.Errorf("output missing month title:\n%s", out)
	}
	if !strings.Contains(out, "R$ 300,00") || !strings.Contains(out, "R$ 100,00") {
		t.Errorf("output missing totals:\n%s", out)
	}
}
