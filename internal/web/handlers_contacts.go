package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/rolodex/internal/core"
	"github.com/JonMunkholm/rolodex/internal/logging"
	"github.com/JonMunkholm/rolodex/internal/web/views"
)

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.service.Contacts(r.Context(), core.UserIDFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if contacts == nil {
		contacts = []core.Contact{}
	}
	writeJSON(w, map[string]any{"contacts": contacts, "count": len(contacts)})
}

// handleCapacity returns the CapacityStatus, or the badge partial for HTMX.
func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Capacity(r.Context(), core.UserIDFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		views.CapacityBadge(status).Render(r.Context(), w)
		return
	}
	writeJSON(w, status)
}

func (s *Server) handleExportContacts(w http.ResponseWriter, r *http.Request) {
	userID := core.UserIDFromContext(r.Context())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="contacts.csv"`)

	n, err := s.service.ExportCSV(r.Context(), userID, w)
	if err != nil && n == 0 {
		s.respondError(w, r, err, 0)
		return
	}
	if err != nil {
		// Headers may be gone already; the log is all that is left.
		logging.FromContext(r.Context()).Error("export failed", "error", err, "written", n)
		return
	}
	logging.FromContext(r.Context()).Info("contacts exported", "count", n)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	userID := core.UserIDFromContext(r.Context())
	if err := s.service.DeleteContact(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetContacts(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.ResetContacts(r.Context(), core.UserIDFromContext(r.Context()))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, map[string]int{"deleted": n})
}
