package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eddykim0118/kivo/internal/config"
	"github.com/eddykim0118/kivo/internal/platform/ctxutil"
	"github.com/eddykim0118/kivo/internal/platform/logger"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// JWTClaims are the claims issued by the identity provider. Only the subject
// is required; session_id narrows the single-flight scope when present.
type JWTClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
}

type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type authService struct {
	log      *logger.Logger
	secret   []byte
	issuer   string
	audience string
}

func NewAuthService(baseLog *logger.Logger, cfg config.AuthConfig) AuthService {
	return &authService{
		log:      baseLog.With("service", "AuthService"),
		secret:   []byte(cfg.JWTSecret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
	}
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if strings.TrimSpace(tokenString) == "" {
		return ctx, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
	}
	if as.issuer != "" {
		opts = append(opts, jwt.WithIssuer(as.issuer))
	}
	if as.audience != "" {
		opts = append(opts, jwt.WithAudience(as.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(*jwt.Token) (interface{}, error) {
		return as.secret, nil
	}, opts...)
	if err != nil {
		as.log.Debug("Token rejected", "error", err)
		return ctx, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, ErrInvalidToken
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return ctx, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	rd := &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      sub,
		SessionID:   strings.TrimSpace(claims.SessionID),
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}
