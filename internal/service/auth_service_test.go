package service

import (
	"errors"
	"testing"
	"time"

	"github.com/licenseshop/internal/config"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash password failed: %v", err)
	}
	cfg := &config.Config{}
	cfg.Admin.Username = "admin"
	cfg.Admin.PasswordHash = hash
	cfg.Admin.JWT.SecretKey = "admin-secret"
	cfg.Admin.JWT.ExpireHours = 2
	return NewAuthService(cfg)
}

func TestLoginIssuesAdminToken(t *testing.T) {
	svc := newTestAuthService(t)
	if _, _, err := svc.Login("admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, err := svc.Login("root", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	token, expiresAt, err := svc.Login(" admin ", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if time.Until(expiresAt) < time.Hour {
		t.Fatalf("unexpected expiry: %v", expiresAt)
	}
	claims, err := svc.ParseJWT(token)
	if err != nil || claims.Username != "admin" {
		t.Fatalf("parse failed: %+v err=%v", claims, err)
	}
}

func TestCheckoutSessionRoundTrip(t *testing.T) {
	svc := newTestAuthService(t)
	session, err := svc.IssueCheckoutSession("")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if session.CartRef == "" || session.DeviceHash == "" {
		t.Fatalf("session missing identifiers: %+v", session)
	}
	parsed, err := svc.ParseCheckoutSession(session.Token)
	if err != nil || parsed.CartRef != session.CartRef || parsed.DeviceHash != session.DeviceHash {
		t.Fatalf("unexpected parsed session: %+v err=%v", parsed, err)
	}

	// 无效 token 重新签发新的会话
	fresh, err := svc.IssueCheckoutSession("garbage")
	if err != nil || fresh.CartRef == session.CartRef {
		t.Fatalf("expected a fresh cart ref: %+v err=%v", fresh, err)
	}

	if _, err := svc.ParseCheckoutSession(""); !errors.Is(err, ErrSessionRequired) {
		t.Fatalf("expected session required, got %v", err)
	}
	if _, err := svc.ParseCheckoutSession("garbage"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected session invalid, got %v", err)
	}
	// 管理员 token 不能当作结账会话使用
	adminToken, _, _ := svc.GenerateJWT("admin")
	if _, err := svc.ParseCheckoutSession(adminToken); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("admin token must not parse as checkout session, got %v", err)
	}
}

func TestCheckoutSessionExpires(t *testing.T) {
	svc := newTestAuthService(t)
	session, err := svc.IssueCheckoutSession("")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(73 * time.Hour) }
	if _, err := svc.ParseCheckoutSession(session.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected expired session to be invalid, got %v", err)
	}
}
