package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// clientID returns the ID stored in the client cookie, issuing a new one if the request has none.
func clientID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(clientCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     clientCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   60 * 60 * 24 * 365,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// HandleHome renders the full page with the current state of the client's study session.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	c := m.controller(clientID(w, r))

	data := newPageData(c.Snapshot(r.Context()))
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to execute home template", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// HandleSSE streams the content and sidebar updates of the client's session.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}
