package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/deviceconfig"
	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// MaxBodySize bounds a PUT body
const MaxBodySize = 16 << 10

// Sections is the session the API serves. *deviceconfig.Session
// implements it.
type Sections interface {
	Device() transport.Device
	Read(ctx context.Context, ns schema.Namespace) (*schema.Section, error)
	Write(ctx context.Context, ns schema.Namespace, raw map[string]string) error
	Update(ctx context.Context, ns schema.Namespace, changes map[string]string) error
}

// Handler serves the section API for one bound session
type Handler struct {
	sections    Sections
	showSecrets bool
	timeout     time.Duration
}

// Option configures a Handler
type Option func(*Handler)

// WithSecrets returns LoRaWAN keys unmasked
func WithSecrets(show bool) Option {
	return func(h *Handler) { h.showSecrets = show }
}

// WithTimeout bounds every device operation. Zero leaves the request
// context alone.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) { h.timeout = d }
}

// NewHandler creates a handler serving sections
func NewHandler(sections Sections, opts ...Option) *Handler {
	h := &Handler{sections: sections}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds the API routes to r
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sections", h.ListSections)
		r.Get("/sections/{namespace}", h.GetSection)
		r.Put("/sections/{namespace}", h.PutSection)
		r.Patch("/sections/{namespace}", h.PatchSection)
	})
}

// Router returns a standalone router serving only the API
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	h.Register(r)
	return r
}

// FieldInfo describes one field of a namespace
type FieldInfo struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	ReadOnly bool   `json:"readOnly,omitempty"`
	Secret   bool   `json:"secret,omitempty"`
}

// SectionInfo describes one namespace
type SectionInfo struct {
	Namespace string      `json:"namespace"`
	Title     string      `json:"title"`
	Locator   string      `json:"locator"`
	Fields    []FieldInfo `json:"fields"`
}

// ListSectionsResponse is the body of GET /api/v1/sections
type ListSectionsResponse struct {
	Device   transport.Device `json:"device"`
	Sections []SectionInfo    `json:"sections"`
}

// SectionResponse is the body of GET /api/v1/sections/{namespace}
type SectionResponse struct {
	Device    string         `json:"device"`
	Namespace string         `json:"namespace"`
	Values    map[string]any `json:"values"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error      string            `json:"error"`
	Violations map[string]string `json:"violations,omitempty"`
}

// ListSections lists every namespace and its fields. The device is not
// contacted.
func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	resp := ListSectionsResponse{Device: h.sections.Device()}
	for _, ns := range schema.All() {
		sch := schema.SchemaFor(ns)
		info := SectionInfo{
			Namespace: string(ns),
			Title:     ns.Title(),
			Locator:   schema.LocatorFor(ns).String(),
		}
		for _, f := range sch.Fields {
			info.Fields = append(info.Fields, FieldInfo{
				Key:      f.Key,
				Label:    f.Label,
				Type:     f.Type.String(),
				ReadOnly: f.ReadOnly,
				Secret:   f.Secret,
			})
		}
		resp.Sections = append(resp.Sections, info)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSection reads one section from the device
func (h *Handler) GetSection(w http.ResponseWriter, r *http.Request) {
	ns, ok := h.namespace(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	sec, err := h.sections.Read(ctx, ns)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	values := make(map[string]any, sec.Len())
	for _, key := range sec.Keys() {
		v, _ := sec.Get(key)
		if f, ok := schema.SchemaFor(ns).Field(key); ok && f.Secret && !h.showSecrets {
			v = deviceconfig.MaskKey(sec.Text(key))
		}
		values[key] = v
	}
	writeJSON(w, http.StatusOK, SectionResponse{
		Device:    h.sections.Device().ID,
		Namespace: string(ns),
		Values:    values,
	})
}

// PutSection replaces one section. The body is a JSON object mapping
// field keys to values; strings are taken as field text and numbers and
// booleans as their literal text. Writable fields missing from the body
// are written empty.
func (h *Handler) PutSection(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, h.sections.Write)
}

// PatchSection changes the named fields and keeps the rest at their
// current device values.
func (h *Handler) PatchSection(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, h.sections.Update)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, apply func(context.Context, schema.Namespace, map[string]string) error) {
	ns, ok := h.namespace(w, r)
	if !ok {
		return
	}

	raw, err := decodeFields(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := h.context(r)
	defer cancel()

	if err := apply(ctx, ns, raw); err != nil {
		h.writeError(w, r, err)
		return
	}

	logging.Info("Section written via API",
		zap.String("device_id", h.sections.Device().ID),
		zap.String("namespace", string(ns)),
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) namespace(w http.ResponseWriter, r *http.Request) (schema.Namespace, bool) {
	ns, err := schema.Parse(chi.URLParam(r, "namespace"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return "", false
	}
	return ns, true
}

func (h *Handler) context(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout > 0 {
		return context.WithTimeout(r.Context(), h.timeout)
	}
	return context.WithCancel(r.Context())
}

func decodeFields(body io.Reader) (map[string]string, error) {
	var fields map[string]any
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("body must be a JSON object of field values: %w", err)
	}
	if fields == nil {
		return nil, errors.New("body must be a JSON object of field values")
	}

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		switch x := v.(type) {
		case string:
			raw[k] = x
		case json.Number:
			raw[k] = x.String()
		case bool:
			raw[k] = strconv.FormatBool(x)
		case nil:
			raw[k] = ""
		default:
			return nil, fmt.Errorf("field %s: value must be a string, number or boolean", k)
		}
	}
	return raw, nil
}

// StatusFor maps a session error to an HTTP status code
func StatusFor(err error) int {
	switch {
	case deviceconfig.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case deviceconfig.IsSessionConflict(err), deviceconfig.IsSessionClosed(err):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case deviceconfig.IsTransportError(err), deviceconfig.IsDecodeError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Warn("API request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{
		Error:      err.Error(),
		Violations: deviceconfig.Violations(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
