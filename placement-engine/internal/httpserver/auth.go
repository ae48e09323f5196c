package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ILLUVRSE/placements/placement-engine/internal/session"
)

const devProfileHeader = "X-Local-Dev-Profile"

type identityKey struct{}

// profileClaims carries the profile id in sub and its segment hash.
type profileClaims struct {
	SegmentID string `json:"segment_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier turns a bearer token into the caller's profile identity.
type Verifier struct {
	secret         []byte
	issuer         string
	allowDevHeader bool
}

func NewVerifier(secret, issuer string, allowDevHeader bool) (*Verifier, error) {
	if secret == "" && !allowDevHeader {
		return nil, errors.New("jwt secret required")
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, allowDevHeader: allowDevHeader}, nil
}

func (v *Verifier) Identify(r *http.Request) (session.Identity, error) {
	if v.allowDevHeader {
		if id := r.Header.Get(devProfileHeader); id != "" {
			return session.Identity{ProfileID: id, SegmentID: r.Header.Get("X-Local-Dev-Segment")}, nil
		}
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return session.Identity{}, errors.New("bearer token required")
	}
	if len(v.secret) == 0 {
		return session.Identity{}, errors.New("token verification not configured")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims profileClaims
	_, err := jwt.ParseWithClaims(strings.TrimPrefix(authHeader, "Bearer "), &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return session.Identity{}, fmt.Errorf("token parse error: %w", err)
	}
	if claims.Subject == "" {
		return session.Identity{}, errors.New("token has no subject")
	}
	return session.Identity{ProfileID: claims.Subject, SegmentID: claims.SegmentID}, nil
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := v.Identify(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func identityFrom(ctx context.Context) (session.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(session.Identity)
	return id, ok
}
