package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/entity"
)

// Collection provides CRUD for one API collection
type Collection struct {
	http  *HTTPClient
	path  string // e.g. "/api/properties"
	label string // e.g. "properties", used in user-facing messages
}

// Collection returns a client for the collection at path
func (c *HTTPClient) Collection(path string) *Collection {
	return &Collection{http: c, path: path, label: labelFor(path)}
}

// labelFor turns "/api/auth/allowed-emails" into "allowed emails"
func labelFor(path string) string {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api"), "/"), "/")
	label := parts[0]
	if label == "auth" && len(parts) > 1 {
		label = parts[1]
	}
	return strings.ReplaceAll(label, "-", " ")
}

// Path returns the collection path
func (c *Collection) Path() string {
	return c.path
}

// List fetches the whole collection. Both {data:[...]} and bare arrays are
// accepted; any other shape yields an empty list. Non-object elements are skipped.
func (c *Collection) List(ctx context.Context) ([]map[string]any, error) {
	body, err := c.send(ctx, http.MethodGet, c.path, nil, "fetch")
	if err != nil {
		return nil, err
	}
	return decodeList(body), nil
}

// Create posts a new record and returns the server's copy
func (c *Collection) Create(ctx context.Context, payload map[string]any) (map[string]any, error) {
	body, err := c.send(ctx, http.MethodPost, c.path, payload, "create")
	if err != nil {
		return nil, err
	}
	return decodeObject(body), nil
}

// Update replaces a record and returns the server's copy
func (c *Collection) Update(ctx context.Context, id int64, payload map[string]any) (map[string]any, error) {
	body, err := c.send(ctx, http.MethodPut, fmt.Sprintf("%s/%d", c.path, id), payload, "update")
	if err != nil {
		return nil, err
	}
	return decodeObject(body), nil
}

// Delete removes a record. A 404 counts as success: the record is gone either way.
func (c *Collection) Delete(ctx context.Context, id int64) error {
	_, err := c.send(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", c.path, id), nil, "delete")
	var tErr *TransportError
	if err != nil && errors.As(err, &tErr) && tErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Collection) send(ctx context.Context, method, path string, payload map[string]any, verb string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.http.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	op := fmt.Sprintf("Failed to %s %s", verb, c.label)
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		var tErr *TransportError
		if errors.As(err, &tErr) && tErr.Message == "" {
			tErr.Message = op
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(resp)
		if msg == "" {
			msg = op
		}
		return nil, &TransportError{
			Op:        method + " " + path,
			Status:    resp.StatusCode,
			Message:   msg,
			Retryable: resp.StatusCode >= 500,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Message: op, Retryable: true, Err: err}
	}
	return body, nil
}

// Me fetches the signed-in identity from GET /api/auth/me
func (c *HTTPClient) Me(ctx context.Context) (auth.Identity, error) {
	body, err := c.Collection("/api/auth/me").send(ctx, http.MethodGet, "/api/auth/me", nil, "fetch")
	if err != nil {
		return auth.Identity{}, err
	}
	obj := decodeObject(body)

	id, err := entity.ParseID(obj["id"])
	if err != nil {
		return auth.Identity{}, fmt.Errorf("invalid identity: %w", err)
	}
	roleStr, _ := entity.GetString(obj, "role")
	role, ok := auth.ParseRole(roleStr)
	if !ok {
		return auth.Identity{}, fmt.Errorf("invalid identity: unknown role %q", roleStr)
	}
	ident := auth.Identity{ID: id, Role: role}
	ident.Name, _ = entity.GetString(obj, "name")
	ident.Email, _ = entity.GetString(obj, "email")
	ident.Phone, _ = entity.GetString(obj, "phone")
	return ident, nil
}

func decodeList(body []byte) []map[string]any {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return []map[string]any{}
	}
	if obj, ok := v.(map[string]any); ok {
		v = obj["data"]
	}
	arr, ok := v.([]any)
	if !ok {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func decodeObject(body []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		return inner
	}
	return obj
}

// serverMessage extracts {"message": ...} or {"error": ...} from an error body
func serverMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ""
	}
	var body map[string]any
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	for _, k := range []string{"message", "error"} {
		if s, ok := body[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
