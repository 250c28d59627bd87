package service

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/licenseshop/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const checkoutAudience = "checkout"

// AuthService 管理员认证与结账会话签发
type AuthService struct {
	cfg *config.Config
	now func() time.Time
}

// NewAuthService 创建认证服务实例
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg, now: time.Now}
}

// HashPassword 使用 bcrypt 加密密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword 验证密码
func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// JWTClaims 管理员 JWT 声明
type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateJWT 生成管理员 JWT Token
func (s *AuthService) GenerateJWT(username string) (string, time.Time, error) {
	now := s.now()
	hours := s.cfg.Admin.JWT.ExpireHours
	if hours <= 0 {
		hours = 24
	}
	expiresAt := now.Add(time.Duration(hours) * time.Hour)
	claims := JWTClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.Admin.JWT.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseJWT 解析管理员 JWT Token
func (s *AuthService) ParseJWT(tokenString string) (*JWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Admin.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid && claims.Username == s.cfg.Admin.Username {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// Login 管理员登录
func (s *AuthService) Login(username, password string) (string, time.Time, error) {
	username = strings.TrimSpace(username)
	expected := strings.TrimSpace(s.cfg.Admin.Username)
	if expected == "" || s.cfg.Admin.PasswordHash == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(expected)) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(s.cfg.Admin.PasswordHash, password); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.GenerateJWT(expected)
}

// CheckoutSession 服务端签发的结账会话
type CheckoutSession struct {
	Token      string    `json:"session_token"`
	DeviceHash string    `json:"device_hash"`
	CartRef    string    `json:"cart_ref"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// sessionClaims 结账会话 JWT 声明
type sessionClaims struct {
	DeviceHash string `json:"device_hash"`
	CartRef    string `json:"cart_ref"`
	jwt.RegisteredClaims
}

func (s *AuthService) sessionSecret() []byte {
	if secret := strings.TrimSpace(s.cfg.Checkout.SessionSecret); secret != "" {
		return []byte(secret)
	}
	return []byte(s.cfg.Admin.JWT.SecretKey)
}

func (s *AuthService) sessionTTL() time.Duration {
	if s.cfg.Checkout.SessionTTLHours > 0 {
		return time.Duration(s.cfg.Checkout.SessionTTLHours) * time.Hour
	}
	return 72 * time.Hour
}

// IssueCheckoutSession 签发结账会话；传入仍有效的旧 token 时沿用其 cart_ref 并续期
func (s *AuthService) IssueCheckoutSession(existing string) (*CheckoutSession, error) {
	deviceHash := strings.ReplaceAll(uuid.NewString(), "-", "")
	cartRef := "cart_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	if strings.TrimSpace(existing) != "" {
		if prev, err := s.ParseCheckoutSession(existing); err == nil {
			deviceHash, cartRef = prev.DeviceHash, prev.CartRef
		}
	}
	now := s.now()
	expiresAt := now.Add(s.sessionTTL())
	claims := sessionClaims{
		DeviceHash: deviceHash,
		CartRef:    cartRef,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   cartRef,
			Audience:  jwt.ClaimStrings{checkoutAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.sessionSecret())
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{Token: token, DeviceHash: deviceHash, CartRef: cartRef, ExpiresAt: expiresAt}, nil
}

// ParseCheckoutSession 校验结账会话 token
func (s *AuthService) ParseCheckoutSession(tokenString string) (*CheckoutSession, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrSessionRequired
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(checkoutAudience),
		jwt.WithTimeFunc(s.now),
	)
	token, err := parser.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.sessionSecret(), nil
	})
	if err != nil {
		return nil, ErrSessionInvalid
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.CartRef == "" {
		return nil, ErrSessionInvalid
	}
	session := &CheckoutSession{Token: tokenString, DeviceHash: claims.DeviceHash, CartRef: claims.CartRef}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
