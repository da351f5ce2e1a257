package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/musicshare/api/internal/dto"
	"github.com/musicshare/api/internal/model"
	"github.com/musicshare/api/internal/repository"
	"github.com/musicshare/api/internal/service"
	"github.com/musicshare/api/pkg/database"
	"github.com/musicshare/api/pkg/phone"
)

type authTestServer struct {
	engine *gin.Engine
	db     *gorm.DB
	otps   *repository.OtpRepository
	users  *repository.UserRepository
}

func newAuthTestServer(t *testing.T) *authTestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			_, err := phone.Normalize(fl.Field().String())
			return err == nil
		})
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get underlying connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	users := repository.NewUserRepository(db)
	otps := repository.NewOtpRepository(db)
	jwtSvc := service.NewJWTService("test-secret", 15*time.Minute)
	sessions := service.NewSessionService(users, jwtSvc, 72*time.Hour)
	otpSvc := service.NewOtpService(users, otps, sessions, nil, 0, 0)

	h := NewAuthHandler(otpSvc, sessions)

	engine := gin.New()
	auth := engine.Group("/api/v1/auth")
	auth.POST("/request_otp", h.RequestOTP)
	auth.POST("/verify_otp", h.VerifyOTP)
	auth.POST("/refresh", h.RefreshToken)

	return &authTestServer{engine: engine, db: db, otps: otps, users: users}
}

func (s *authTestServer) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encoding request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

// pendingCode reads the issued code straight from storage, standing in for
// the out-of-band delivery channel.
func (s *authTestServer) pendingCode(t *testing.T, phoneNumber string) string {
	t.Helper()
	user, err := s.users.GetByPhone(context.Background(), phoneNumber)
	if err != nil {
		t.Fatalf("looking up user: %v", err)
	}
	request, err := s.otps.GetPending(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("looking up pending code: %v", err)
	}
	return request.Code
}

func TestRequestOTPEndpoint(t *testing.T) {
	srv := newAuthTestServer(t)

	rec := srv.post(t, "/api/v1/auth/request_otp", dto.RequestOtpRequest{PhoneNumber: "+1 (555) 123-4567"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}

	var resp dto.RequestOtpResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ExpiresAt.IsZero() {
		t.Error("response carries no expiry")
	}

	// The code must never leak into the response body.
	code := srv.pendingCode(t, "+15551234567")
	if strings.Contains(rec.Body.String(), code) {
		t.Error("response body contains the issued code")
	}
}

func TestRequestOTPEndpointInvalidPhone(t *testing.T) {
	srv := newAuthTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"unparseable phone", dto.RequestOtpRequest{PhoneNumber: "not a number"}},
		{"missing phone", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.post(t, "/api/v1/auth/request_otp", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestVerifyOTPEndpoint(t *testing.T) {
	srv := newAuthTestServer(t)
	const phoneNumber = "+15551234567"

	if rec := srv.post(t, "/api/v1/auth/request_otp", dto.RequestOtpRequest{PhoneNumber: phoneNumber}); rec.Code != http.StatusOK {
		t.Fatalf("request_otp status = %d", rec.Code)
	}
	code := srv.pendingCode(t, phoneNumber)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	rec := srv.post(t, "/api/v1/auth/verify_otp", dto.VerifyOtpRequest{PhoneNumber: phoneNumber, Code: wrong})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code status = %d, want 401; body: %s", rec.Code, rec.Body.String())
	}
	var mismatch dto.VerifyOtpResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &mismatch); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if mismatch.Result != "mismatch" || mismatch.Session != nil {
		t.Errorf("wrong code response = %+v", mismatch)
	}

	rec = srv.post(t, "/api/v1/auth/verify_otp", dto.VerifyOtpRequest{PhoneNumber: phoneNumber, Code: code})
	if rec.Code != http.StatusOK {
		t.Fatalf("correct code status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var accepted dto.VerifyOtpResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &accepted); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if accepted.Result != "accepted" {
		t.Errorf("result = %q, want accepted", accepted.Result)
	}
	if accepted.Session == nil || accepted.Session.AccessToken == "" {
		t.Fatal("accepted response carries no session")
	}
	if accepted.Session.User.Status != string(model.UserStatusComplete) {
		t.Errorf("user status = %q, want complete", accepted.Session.User.Status)
	}

	// Replaying the consumed code must not mint another session.
	rec = srv.post(t, "/api/v1/auth/verify_otp", dto.VerifyOtpRequest{PhoneNumber: phoneNumber, Code: code})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", rec.Code)
	}
	var replay dto.VerifyOtpResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &replay); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if replay.Result != "no_active_request" {
		t.Errorf("replay result = %q, want no_active_request", replay.Result)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv := newAuthTestServer(t)
	const phoneNumber = "+15551234567"

	srv.post(t, "/api/v1/auth/request_otp", dto.RequestOtpRequest{PhoneNumber: phoneNumber})
	code := srv.pendingCode(t, phoneNumber)

	rec := srv.post(t, "/api/v1/auth/verify_otp", dto.VerifyOtpRequest{PhoneNumber: phoneNumber, Code: code})
	var verified dto.VerifyOtpResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &verified); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if verified.Session == nil {
		t.Fatal("verification returned no session")
	}

	rec = srv.post(t, "/api/v1/auth/refresh", dto.RefreshTokenRequest{RefreshToken: verified.Session.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	var rotated dto.SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &rotated); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if rotated.RefreshToken == verified.Session.RefreshToken {
		t.Error("refresh did not rotate the refresh token")
	}

	rec = srv.post(t, "/api/v1/auth/refresh", dto.RefreshTokenRequest{RefreshToken: "bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bogus refresh status = %d, want 401", rec.Code)
	}
}
