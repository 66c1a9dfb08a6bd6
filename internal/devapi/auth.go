package devapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/auth"
)

// JWTCfg holds JWT authentication configuration
type JWTCfg struct {
	HS256Secret string
	TTL         time.Duration // lifetime of tokens issued by /api/auth/login
}

// claims carries the identity inside a dev token
type claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for id
func IssueToken(cfg JWTCfg, id auth.Identity) (string, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	c := claims{
		Role:  string(id.Role),
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(cfg.HS256Secret))
}

// parseToken validates a bearer token and returns the identity it carries
func parseToken(cfg JWTCfg, tok string) (auth.Identity, error) {
	var c claims
	t, err := jwt.ParseWithClaims(tok, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.HS256Secret), nil
	})
	if err != nil {
		return auth.Identity{}, err
	}
	if !t.Valid {
		return auth.Identity{}, jwt.ErrTokenInvalidClaims
	}

	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return auth.Identity{}, errors.New("subject is not a user id")
	}
	role, ok := auth.ParseRole(c.Role)
	if !ok {
		return auth.Identity{}, errors.New("unknown role claim")
	}
	return auth.Identity{ID: id, Role: role, Email: c.Email, Name: c.Name}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller's identity in the request context
func Middleware(cfg JWTCfg) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || tok == "" {
				log.Ctx(r.Context()).Warn().Msg("missing bearer token")
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			id, err := parseToken(cfg, tok)
			if err != nil {
				log.Ctx(r.Context()).Warn().Err(err).Msg("jwt validation failed")
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole answers 403 unless the caller has one of roles
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := auth.IdentityFrom(r.Context())
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Access denied")
		})
	}
}
