package web

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Permission flags carried in the token.
const (
	PermInventory  = "inventory"
	PermSales      = "sales"
	PermPurchasing = "purchasing"
	PermRepairs    = "repairs"
	PermFinance    = "finance"
)

type actorKey struct{}

// Actor is the authenticated caller. The core trusts ActorID as given.
type Actor struct {
	ID          int
	Permissions []string
}

func (a *Actor) Can(perm string) bool {
	return a != nil && slices.Contains(a.Permissions, perm)
}

func actorFromContext(ctx context.Context) *Actor {
	v, _ := ctx.Value(actorKey{}).(*Actor)
	return v
}

type actorClaims struct {
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for actorID. The subject holds the actor id.
func IssueToken(secret string, actorID int, perms []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &actorClaims{
		Permissions: perms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(actorID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, raw string) (*Actor, error) {
	claims := &actorClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("token subject %q is not an actor id", claims.Subject)
	}
	return &Actor{ID: id, Permissions: claims.Permissions}, nil
}

// bearerToken reads the Authorization header, falling back to the auth_token cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie("auth_token"); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth validates the token and puts the Actor into the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		actor, err := parseToken(h.jwtSecret, raw)
		if err != nil {
			writeError(w, r, "invalid or expired token", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission rejects callers whose token lacks perm.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !actorFromContext(r.Context()).Can(perm) {
				writeError(w, r, "missing permission: "+perm, "FORBIDDEN", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// me handles GET /api/me.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	type meResponse struct {
		ActorID     int      `json:"actor_id"`
		Permissions []string `json:"permissions"`
	}
	writeJSON(w, meResponse{ActorID: actor.ID, Permissions: actor.Permissions})
}
