package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/rolodex/internal/core"
	"github.com/JonMunkholm/rolodex/internal/web/views"
)

// multipartOverhead is allowed on top of the file size ceiling for form
// boundaries and headers.
const multipartOverhead = 1 << 20

// heartbeatInterval keeps idle event streams open through proxies.
const heartbeatInterval = 15 * time.Second

// handleStartImport accepts a multipart "file" and starts an import.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	userID := core.UserIDFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.respondError(w, r, fmt.Errorf("file too large: %w", err), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: invalid form: %v", core.ErrParse, err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > s.cfg.Import.MaxFileSize {
		s.respondError(w, r, fmt.Errorf("file too large: %d bytes", header.Size), http.StatusRequestEntityTooLarge)
		return
	}

	id, err := s.service.Start(r.Context(), userID, header.Filename, file)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]string{"import_id": id})
}

// importFor loads the session and hides other users' imports.
func (s *Server) importFor(r *http.Request) (core.SessionView, error) {
	view, err := s.service.Session(chi.URLParam(r, "id"))
	if err != nil {
		return core.SessionView{}, err
	}
	if view.UserID != core.UserIDFromContext(r.Context()) {
		return core.SessionView{}, core.ErrImportNotFound
	}
	return view, nil
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	view, err := s.importFor(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleActiveImport(w http.ResponseWriter, r *http.Request) {
	view, ok := s.service.ActiveSession(core.UserIDFromContext(r.Context()))
	if !ok {
		s.respondError(w, r, core.ErrImportNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleConfirmImport(w http.ResponseWriter, r *http.Request) {
	view, err := s.importFor(r)
	if err == nil {
		err = s.service.Confirm(r.Context(), view.ID)
	}
	s.respondDecision(w, r, view.ID, err)
}

func (s *Server) handleOversizedDecision(w http.ResponseWriter, r *http.Request) {
	var d core.OversizedDecision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidDecision, err), http.StatusBadRequest)
		return
	}
	view, err := s.importFor(r)
	if err == nil {
		err = s.service.DecideOversized(r.Context(), view.ID, d)
	}
	s.respondDecision(w, r, view.ID, err)
}

func (s *Server) handleResolveDuplicate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidDecision, err), http.StatusBadRequest)
		return
	}
	res, err := core.ParseResolution(body.Action)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	view, err := s.importFor(r)
	if err == nil {
		err = s.service.Resolve(r.Context(), view.ID, res)
	}
	s.respondDecision(w, r, view.ID, err)
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	view, err := s.importFor(r)
	if err == nil {
		err = s.service.Cancel(view.ID)
	}
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleDismissImport(w http.ResponseWriter, r *http.Request) {
	view, err := s.importFor(r)
	if err == nil {
		err = s.service.Dismiss(view.ID)
	}
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondDecision replies with the session snapshot after an accepted
// decision.
func (s *Server) respondDecision(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	view, err := s.service.Session(id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, view)
}

// lastEventID reads the resume point from the Last-Event-ID header or the
// lastEventId query parameter.
func lastEventID(r *http.Request) int64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// handleImportEvents streams the import's events as SSE. Each event id is
// its sequence number, so reconnecting clients receive only what they
// missed. The stream ends with an "end" event once the import is over.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	view, err := s.importFor(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	events, err := s.service.Subscribe(r.Context(), view.ID, lastEventID(r))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	rc.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if r.Context().Err() == nil {
					fmt.Fprint(w, "event: end\ndata: {}\n\n")
					rc.Flush()
				}
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, data)
			if err := rc.Flush(); err != nil {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// handleImportProgress renders the HTMX progress partial.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	view, err := s.importFor(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ImportProgress(view).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}
