package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teachme/teachme/internal/study"
)

// HandleSubmit passes the "message" form field to the client's controller: the topic while pending, the
// answer once a question was asked. The model is contacted in the background and the result reaches the
// browser through the event stream, so the handler answers 202 Accepted right away. Empty messages are
// ignored and a submission while the previous one is loading is rejected with 409 Conflict.
func (m Main) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	msg := strings.TrimSpace(r.FormValue("message"))
	if msg == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	if c.Snapshot(r.Context()).Loading {
		http.Error(w, study.ErrBusy.Error(), http.StatusConflict)
		return
	}

	go func() {
		if err := c.Submit(m.ctx, msg); err != nil {
			if errors.Is(err, study.ErrBusy) {
				m.logger.Debug("Submission dropped, controller busy")
				return
			}
			m.logger.Error("Failed to submit message", slog.String(errLoggerKey, err.Error()))
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// HandleReset discards the client's conversation and returns to the home panel.
func (m Main) HandleReset(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	c.Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// HandleSuggestion copies the "topic" form field into the input box without submitting it.
func (m Main) HandleSuggestion(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.FormValue("topic"))
	if topic == "" {
		http.Error(w, "Topic is required", http.StatusBadRequest)
		return
	}

	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	c.SelectSuggestion(r.Context(), topic)
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearHistory deletes the client's topic history and starts over.
func (m Main) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := m.lookup(w, r)
	if !ok {
		return
	}
	if err := c.ClearHistory(r.Context()); err != nil {
		m.logger.Error("Failed to clear history", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
