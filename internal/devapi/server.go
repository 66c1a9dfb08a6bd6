package devapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/entity"
	"github.com/erauner12/propsync/internal/metrics"
)

// collection describes one REST collection and the push events announcing its changes
type collection struct {
	typ     entity.Type
	path    string
	created string
	updated string // empty when the collection has no update route
	deleted string
	readers []auth.Role
	writers []auth.Role
}

var (
	everyone = []auth.Role{auth.RoleAdmin, auth.RoleLandlord, auth.RoleAgent, auth.RoleTenant}
	managers = []auth.Role{auth.RoleAdmin, auth.RoleLandlord, auth.RoleAgent}
	admins   = []auth.Role{auth.RoleAdmin}
)

var collections = []collection{
	{entity.User, "/api/users", "user_created", "user_updated", "user_deleted", admins, admins},
	{entity.Property, "/api/properties", "property_created", "property_updated", "property_deleted", managers, managers},
	{entity.Tenancy, "/api/tenants", "tenant_created", "tenant_updated", "tenant_deleted", admins, managers},
	{entity.MaintenanceRequest, "/api/maintenance", "maintenance_request", "maintenance_update", "maintenance_deleted", everyone, everyone},
	{entity.Payment, "/api/payments", "payment_initiated", "payment_updated", "payment_deleted", everyone, everyone},
	{entity.AllowedEmail, "/api/auth/allowed-emails", "email_approved", "", "email_removed", admins, admins},
}

// Server holds dependencies for HTTP handlers
type Server struct {
	Repo      Repository
	Hub       *Hub
	JWT       JWTCfg
	RateLimit RateLimit
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError writes {"message": msg}, the error shape clients surface to users
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

// CorrelationMiddleware reads X-Correlation-ID (generating one if absent),
// echoes it and attaches a request logger to the context
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set("X-Correlation-ID", correlationID)

		logger := log.With().
			Str("correlationId", correlationID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

// Routes creates the HTTP router with every endpoint and the push socket
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Post("/api/auth/login", s.Login)

	r.Group(func(r chi.Router) {
		r.Use(Middleware(s.JWT))
		r.Use(RateLimitMiddleware(s.RateLimit))

		r.Handle("/socket", s.Hub)
		r.Get("/api/auth/me", s.Me)
		r.Get("/api/activity", s.ListActivity)

		r.With(RequireRole(auth.RoleTenant)).Get("/api/tenants/me", s.OwnTenancies)
		r.With(RequireRole(auth.RoleAdmin)).Get("/api/tenants/all", s.list(entity.Tenancy, true))
		r.With(RequireRole(everyone...)).Post("/api/payments/callback", s.PaymentCallback)

		for _, c := range collections {
			s.mount(r, c)
		}
	})

	log.Info().Int("collections", len(collections)).Msg("HTTP routes registered")
	return r
}

func (s *Server) mount(r chi.Router, c collection) {
	read := r.With(RequireRole(c.readers...))
	write := r.With(RequireRole(c.writers...))

	if c.typ != entity.Tenancy {
		// properties are served as a bare array, everything else in {data: [...]}
		read.Get(c.path, s.list(c.typ, c.typ != entity.Property))
	}
	write.Post(c.path, s.create(c))
	if c.updated != "" {
		write.Put(c.path+"/{id}", s.update(c))
	}
	write.Delete(c.path+"/{id}", s.remove(c))
}

// Seed creates one user per role and a property, returning the users by role
func Seed(ctx context.Context, repo Repository) (map[auth.Role]auth.Identity, error) {
	users := map[auth.Role]auth.Identity{}
	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleLandlord, auth.RoleAgent, auth.RoleTenant} {
		rec, err := repo.Create(ctx, entity.User, map[string]any{
			"name":  string(role) + " user",
			"email": string(role) + "@propsync.dev",
			"role":  string(role),
		})
		if err != nil {
			return nil, err
		}
		id, _ := entity.ParseID(rec["id"])
		users[role] = auth.Identity{ID: id, Name: rec["name"].(string), Email: rec["email"].(string), Role: role}
	}

	if _, err := repo.Create(ctx, entity.Property, map[string]any{
		"name":        "Riverside Apartments",
		"location":    "Nairobi",
		"landlord_id": users[auth.RoleLandlord].ID,
	}); err != nil {
		return nil, err
	}
	return users, nil
}
