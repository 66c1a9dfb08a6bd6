package devapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/entity"
)

const activityLimit = 20

func decodeBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func pathID(r *http.Request) (int64, bool) {
	id, err := entity.ParseID(chi.URLParam(r, "id"))
	return id, err == nil
}

// storeError maps repository errors to responses
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	var nf ErrNotFound
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, nf.Error())
		return
	}
	log.Ctx(r.Context()).Error().Err(err).Msg("repository failure")
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) list(t entity.Type, envelope bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := s.Repo.List(r.Context(), t)
		if err != nil {
			storeError(w, r, err)
			return
		}
		if !envelope {
			writeJSON(w, http.StatusOK, records)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": records})
	}
}

func (s *Server) create(c collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		if c.typ == entity.Tenancy {
			s.attachPropertyName(r, body)
		}

		rec, err := s.Repo.Create(r.Context(), c.typ, body)
		if err != nil {
			storeError(w, r, err)
			return
		}

		s.Hub.Broadcast(c.created, rec)
		s.recordActivity(r, c.typ, rec)
		writeJSON(w, http.StatusCreated, map[string]any{"data": rec})
	}
}

func (s *Server) update(c collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid id")
			return
		}
		body, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		rec, err := s.Repo.Update(r.Context(), c.typ, id, body)
		if err != nil {
			storeError(w, r, err)
			return
		}

		s.Hub.Broadcast(c.updated, rec)
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) remove(c collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid id")
			return
		}

		rec, err := s.Repo.Delete(r.Context(), c.typ, id)
		if err != nil {
			storeError(w, r, err)
			return
		}

		payload := map[string]any{"id": id}
		if c.typ == entity.AllowedEmail {
			payload["email"] = rec["email"]
		}
		s.Hub.Broadcast(c.deleted, payload)
		w.WriteHeader(http.StatusNoContent)
	}
}

// attachPropertyName denormalizes the property name onto a new tenancy
func (s *Server) attachPropertyName(r *http.Request, body map[string]any) {
	pid, err := entity.ParseID(body["property_id"])
	if err != nil {
		return
	}
	if prop, err := s.Repo.Get(r.Context(), entity.Property, pid); err == nil {
		body["property_name"] = prop["name"]
	}
}

func (s *Server) recordActivity(r *http.Request, t entity.Type, rec map[string]any) {
	var typ, msg string
	switch t {
	case entity.Tenancy:
		typ = "tenant_created"
		msg = fmt.Sprintf("New tenant %v assigned to %v", rec["email"], rec["property_name"])
	case entity.AllowedEmail:
		target := rec["property_name"]
		if target == nil {
			target = rec["role"]
		}
		typ = "email_approved"
		msg = fmt.Sprintf("Email %v approved for %v", rec["email"], target)
	default:
		return
	}
	if err := s.Repo.AddActivity(r.Context(), typ, msg); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("failed to record activity")
	}
}

// OwnTenancies serves GET /api/tenants/me: the caller's tenancies
func (s *Server) OwnTenancies(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	records, err := s.Repo.List(r.Context(), entity.Tenancy)
	if err != nil {
		storeError(w, r, err)
		return
	}
	own := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		if entity.SameValue(rec["user_id"], id.ID) {
			own = append(own, rec)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": own})
}

// PaymentCallback serves POST /api/payments/callback: the payment provider
// reports a status change for a transaction
func (s *Server) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	txID, _ := entity.GetString(body, "transaction_id")
	status, _ := entity.GetString(body, "status")
	if txID == "" || status == "" {
		writeError(w, http.StatusBadRequest, "transaction_id and status are required")
		return
	}

	rec, err := s.Repo.FindBy(r.Context(), entity.Payment, "transaction_id", txID)
	if err != nil {
		storeError(w, r, err)
		return
	}
	id, _ := entity.ParseID(rec["id"])
	if _, err := s.Repo.Update(r.Context(), entity.Payment, id, map[string]any{"status": status}); err != nil {
		storeError(w, r, err)
		return
	}

	s.Hub.Broadcast("payment_status", map[string]any{
		"transaction_id": txID,
		"status":         status,
		"message":        fmt.Sprintf("Payment %s is %s", txID, status),
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

// Me serves GET /api/auth/me from the token's claims
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	writeJSON(w, http.StatusOK, id)
}

// ListActivity serves GET /api/activity
func (s *Server) ListActivity(w http.ResponseWriter, r *http.Request) {
	items, err := s.Repo.Activity(r.Context(), activityLimit)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items})
}

// Login serves POST /api/auth/login. Development only: any known email signs in.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	email, _ := entity.GetString(body, "email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	rec, err := s.Repo.FindBy(r.Context(), entity.User, "email", email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	uid, _ := entity.ParseID(rec["id"])
	roleStr, _ := entity.GetString(rec, "role")
	role, ok := auth.ParseRole(roleStr)
	if !ok {
		writeError(w, http.StatusForbidden, "Account has no usable role")
		return
	}
	name, _ := entity.GetString(rec, "name")
	id := auth.Identity{ID: uid, Name: name, Email: email, Role: role}

	token, err := IssueToken(s.JWT, id)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to sign token")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": id})
}
