package system

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/edgeflare/sqlgate/pkg/apidoc"
	"github.com/edgeflare/sqlgate/pkg/event"
	"github.com/edgeflare/sqlgate/pkg/httputil"
)

var errBadScript = errors.New("invalid event script")

// scriptPatch holds the writable fields of an event script; nil fields
// are left unchanged on update.
type scriptPatch struct {
	Content    *string         `json:"content"`
	EngineType *string         `json:"engine_type"`
	Config     *map[string]any `json:"config"`
	IsActive   *bool           `json:"is_active"`
}

func (p scriptPatch) apply(s event.Script) event.Script {
	if p.Content != nil {
		s.Content = *p.Content
	}
	if p.EngineType != nil {
		s.EngineType = *p.EngineType
	}
	if p.Config != nil {
		s.Config = maps.Clone(*p.Config)
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	return s
}

func decodePatch(r *http.Request) (scriptPatch, error) {
	var p scriptPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return p, fmt.Errorf("%w: %v", errBadScript, err)
	}
	return p, nil
}

func (h *Handler) listScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.store.ListScripts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, h.wrap(scripts))
}

func (h *Handler) getScript(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetScript(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, s)
}

// createScript registers a script under the event name in the path. New
// scripts are active unless the body says otherwise.
func (h *Handler) createScript(w http.ResponseWriter, r *http.Request) {
	p, err := decodePatch(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	s := p.apply(event.Script{Name: r.PathValue("name"), IsActive: true})
	if s.EngineType == "" {
		h.writeError(w, fmt.Errorf("%w: engine_type is required", errBadScript))
		return
	}
	created, err := h.store.CreateScript(r.Context(), s)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateScript(w http.ResponseWriter, r *http.Request) {
	p, err := decodePatch(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	current, err := h.store.GetScript(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	updated, err := h.store.UpdateScript(r.Context(), p.apply(current))
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteScript(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteScript(r.Context(), r.PathValue("name")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BroadcastMap lists, per service, the post-process event names that are
// published to broadcast sinks, keyed by path.
func (h *Handler) BroadcastMap() map[string]map[string][]string {
	out := make(map[string]map[string][]string)
	for _, c := range h.services.Caches() {
		paths := apidoc.EventMap(c.Service(), c.Tables(), event.ServicePostProcess)
		maps.Copy(paths, apidoc.EventMap(c.Service(), c.Tables(), event.ResourcePostProcess))
		out[c.Service()] = paths
	}
	return out
}

func (h *Handler) broadcastMap(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, h.BroadcastMap())
}
