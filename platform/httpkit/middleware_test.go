package httpkit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type testJWTConfig struct{}

func (testJWTConfig) GetJWTAccessSecret() string { return "test-secret" }

type recordingFailures struct {
	tenants []uuid.UUID
}

func (r *recordingFailures) RecordAPIFailure(_ context.Context, tenantID uuid.UUID) {
	r.tenants = append(r.tenants, tenantID)
}

func signToken(t *testing.T, tenantID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       uuid.NewString(),
		"type":      "access",
		"tenant_id": tenantID.String(),
		"roles":     []string{"admin"},
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func newEngine(recorder FailureRecorder, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(AuthRequired(testJWTConfig{}), TrackFailures(recorder))
	engine.GET("/x", handler)
	return engine
}

func TestTrackFailuresCountsServerErrorsPerTenant(t *testing.T) {
	tenantID := uuid.New()
	recorder := &recordingFailures{}
	engine := newEngine(recorder, func(c *gin.Context) {
		HandleError(c, apperr.Unavailable("store unavailable"))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, tenantID))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if len(recorder.tenants) != 1 || recorder.tenants[0] != tenantID {
		t.Fatalf("expected one failure for tenant, got %v", recorder.tenants)
	}

	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Code != "retry_later" {
		t.Fatalf("expected retry_later code, got %q", body.Code)
	}
}

func TestTrackFailuresIgnoresPaymentRequired(t *testing.T) {
	recorder := &recordingFailures{}
	engine := newEngine(recorder, func(c *gin.Context) {
		HandleError(c, apperr.PaymentRequired("insufficient token balance"))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	if len(recorder.tenants) != 0 {
		t.Fatalf("402 must not count as an API failure, got %v", recorder.tenants)
	}
}

func TestMustGetTenantIDReadsClaim(t *testing.T) {
	tenantID := uuid.New()
	var got uuid.UUID
	engine := newEngine(nil, func(c *gin.Context) {
		id, ok := MustGetTenantID(c)
		if !ok {
			return
		}
		got = id
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, tenantID))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || got != tenantID {
		t.Fatalf("expected tenant %s, got %s (status %d)", tenantID, got, rec.Code)
	}
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	engine := newEngine(nil, func(c *gin.Context) { c.Status(http.StatusOK) })
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredRejectsWithUnauthorizedCode(t *testing.T) {
	engine := newEngine(nil, func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusUnauthorized || body.Code != "unauthorized" || body.Error != "invalid token" {
		t.Fatalf("expected 401 unauthorized/invalid token, got %d %+v", rec.Code, body)
	}
}

func TestRequireRoleRejectsMissingRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(AuthRequired(testJWTConfig{}), RequireRole("owner"))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusForbidden || body.Code != "forbidden" {
		t.Fatalf("expected 403 forbidden, got %d %+v", rec.Code, body)
	}
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(AuthRequired(testJWTConfig{}), RequireRole("admin"))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, uuid.New()))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected admin to pass, got %d", rec.Code)
	}
}

func TestParamUUIDRejectsMalformedID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	var called bool
	engine.GET("/leads/:id", func(c *gin.Context) {
		if _, ok := ParamUUID(c, "id", "lead ID"); !ok {
			return
		}
		called = true
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads/42", nil))

	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if called || rec.Code != http.StatusBadRequest || body.Code != "bad_request" || body.Error != "invalid lead ID" {
		t.Fatalf("expected 400 bad_request, got %d %+v called=%v", rec.Code, body, called)
	}

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leads/"+uuid.NewString(), nil))
	if !called || rec.Code != http.StatusNoContent {
		t.Fatalf("expected valid id to pass, got %d", rec.Code)
	}
}

func TestRequestLoggerHandlesRecordedErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestLogger(logger.New("development")))
	engine.GET("/x", func(c *gin.Context) {
		HandleError(c, errors.New("pool closed"))
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	var body ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusInternalServerError || body.Error != "internal error" {
		t.Fatalf("expected masked 500, got %d %+v", rec.Code, body)
	}
}
