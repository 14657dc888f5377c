package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/localtuya-core/internal/codec"
	"github.com/nerrad567/localtuya-core/internal/device"
	"github.com/nerrad567/localtuya-core/internal/tuya"
)

// deviceView is the JSON shape of a device client.
type deviceView struct {
	ID           string              `json:"id"`
	UniqueID     string              `json:"unique_id"`
	Name         string              `json:"name"`
	Profile      string              `json:"profile"`
	Manufacturer string              `json:"manufacturer,omitempty"`
	Model        string              `json:"model,omitempty"`
	Status       device.ClientStatus `json:"status"`
	Properties   map[string]any      `json:"properties"`
	Pending      tuya.DPS            `json:"pending,omitempty"`
}

func newDeviceView(c *device.Client) deviceView {
	id := c.Identity()
	return deviceView{
		ID:           id.ID,
		UniqueID:     c.UniqueID(),
		Name:         c.Name(),
		Profile:      c.Profile().ID,
		Manufacturer: id.Manufacturer,
		Model:        id.Model,
		Status:       c.Status(),
		Properties:   c.GetProperties(),
		Pending:      c.PendingState(),
	}
}

// propertiesRequest is the body of PUT /properties and POST /anticipate.
type propertiesRequest struct {
	Properties map[string]any `json:"properties"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	clients := s.registry.List()
	views := make([]deviceView, 0, len(clients))
	for _, c := range clients {
		views = append(views, newDeviceView(c))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(c))
}

// handleGetProperty returns one property from cache. It never contacts
// the device; a stale value is reported as "unknown".
func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	value, err := c.GetProperty(name)
	if err != nil {
		if errors.Is(err, device.ErrUnknownProperty) {
			writeNotFound(w, "property not found: "+name)
			return
		}
		s.writeDeviceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"property": name,
		"value":    value,
		"known":    value != codec.Unknown,
	})
}

// handleSetProperties writes properties. With ?wait=false the write is
// staged and 202 returned without waiting for the SET.
func (s *Server) handleSetProperties(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	req, ok := decodeProperties(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("wait") == "false" {
		if _, err := c.SetPropertiesAsync(req.Properties); err != nil {
			s.writeDeviceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":     "pending",
			"properties": c.GetProperties(),
		})
		return
	}

	if err := c.SetProperties(r.Context(), req.Properties); err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"properties": c.GetProperties(),
	})
}

// handleAnticipate applies values locally without sending anything.
func (s *Server) handleAnticipate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}

	req, ok := decodeProperties(w, r)
	if !ok {
		return
	}

	// Stop at the first rejected value; earlier ones stay anticipated.
	names := make([]string, 0, len(req.Properties))
	for name := range req.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.AnticipatePropertyValue(name, req.Properties[name]); err != nil {
			s.writeDeviceError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"properties": c.GetProperties(),
	})
}

// handleRefresh forces a STATUS round-trip.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	if err := c.ForceRefresh(r.Context()); err != nil {
		s.writeDeviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(c))
}

func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Client, bool) {
	id := chi.URLParam(r, "id")
	c, err := s.registry.Get(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return nil, false
	}
	return c, true
}

func decodeProperties(w http.ResponseWriter, r *http.Request) (propertiesRequest, bool) {
	var req propertiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return req, false
	}
	if len(req.Properties) == 0 {
		writeBadRequest(w, "properties must not be empty")
		return req, false
	}
	return req, true
}

// writeDeviceError maps client errors onto HTTP responses.
func (s *Server) writeDeviceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *codec.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, Error{
			Status:  http.StatusBadRequest,
			Code:    ErrCodeValidation,
			Message: verr.Error(),
			Details: &ValidationDetails{
				Property: verr.Property,
				Value:    verr.Value,
				Min:      verr.Min,
				Max:      verr.Max,
				Allowed:  verr.Allowed,
				Reason:   verr.Reason,
			},
		})
	case errors.Is(err, device.ErrUnknownProperty):
		writeBadRequest(w, err.Error())
	case errors.Is(err, codec.ErrNoBase):
		writeError(w, http.StatusConflict, ErrCodeStateUnknown, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, device.ErrClientClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, tuya.ErrConnection),
		errors.Is(err, tuya.ErrProtocol),
		errors.Is(err, tuya.ErrNotConnected),
		errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("device request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, err.Error())
	default:
		s.logger.Error("device operation failed", "path", r.URL.Path, "error", err)
		writeInternalError(w, "device operation failed")
	}
}
