package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/eddykim0118/kivo/internal/config"
	"github.com/eddykim0118/kivo/internal/data/repos/testutil"
	"github.com/eddykim0118/kivo/internal/platform/ctxutil"
)

func signToken(t *testing.T, secret string, claims JWTClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func validClaims() JWTClaims {
	return JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		SessionID: "sess-9",
	}
}

func TestSetContextFromToken(t *testing.T) {
	svc := NewAuthService(testutil.Logger(t), config.AuthConfig{JWTSecret: "s3cret", Audience: "authenticated"})

	ctx, err := svc.SetContextFromToken(context.Background(), signToken(t, "s3cret", validClaims()))
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID != "user-1" {
		t.Fatalf("request data: %+v", rd)
	}
	if rd.SessionKey() != "user-1:sess-9" {
		t.Fatalf("session key: %q", rd.SessionKey())
	}
}

func TestSetContextFromTokenRejects(t *testing.T) {
	svc := NewAuthService(testutil.Logger(t), config.AuthConfig{JWTSecret: "s3cret", Audience: "authenticated"})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"anon"}
	noSub := validClaims()
	noSub.Subject = ""

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-jwt",
		"wrong secret": signToken(t, "other", validClaims()),
		"expired":      signToken(t, "s3cret", expired),
		"audience":     signToken(t, "s3cret", wrongAud),
		"no subject":   signToken(t, "s3cret", noSub),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, err := svc.SetContextFromToken(context.Background(), token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("want ErrInvalidToken, got %v", err)
			}
			if ctxutil.GetRequestData(ctx) != nil {
				t.Fatalf("request data must not be attached")
			}
		})
	}
}
