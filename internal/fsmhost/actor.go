package fsmhost

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired and ErrInvalidToken mirror the sentinel-error pattern the
// teacher's auth package used for token validation failures.
var (
	ErrTokenExpired = errors.New("fsmhost: actor token expired")
	ErrInvalidToken = errors.New("fsmhost: actor token invalid")
)

// ActorClaims is the minimal JWT claim shape the engine needs to attribute a
// transition to a subject: a user id embedded alongside the registered
// claims, the same layout the teacher's JWTClaims used.
type ActorClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ActorResolver extracts an acting subject id from a bearer token. A nil
// resolver, or one that returns ("", nil), leaves FsmLog.subject_{id,type}
// both null per §4.8.
type ActorResolver interface {
	Resolve(bearerToken string) (subjectID string, subjectType string, err error)
}

// JWTActorResolver validates an HMAC-signed bearer token and returns its
// UserID claim as the subject, attributed as subjectType "user".
type JWTActorResolver struct {
	Secret []byte
}

func NewJWTActorResolver(secret []byte) *JWTActorResolver {
	return &JWTActorResolver{Secret: secret}
}

func (r *JWTActorResolver) Resolve(bearerToken string) (string, string, error) {
	if bearerToken == "" {
		return "", "", nil
	}
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(bearerToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}
		return r.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrTokenExpired
		}
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", "", ErrInvalidToken
	}
	return claims.UserID, "user", nil
}

// NoopActorResolver always yields no subject, for deployments that don't
// attribute transitions to an authenticated actor.
type NoopActorResolver struct{}

func (NoopActorResolver) Resolve(string) (string, string, error) { return "", "", nil }
