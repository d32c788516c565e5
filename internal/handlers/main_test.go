package handlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/teachme/teachme/internal/handlers"
	"github.com/teachme/teachme/internal/models"
	"github.com/teachme/teachme/internal/study"
	"github.com/tmaxmax/go-sse"
)

type mockGenerator struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

type mockStore struct {
	mu     sync.Mutex
	topics map[string][]string
	err    error
}

const testClient = "client-1"

func (g *mockGenerator) Generate(ctx context.Context, history []models.Message) (models.Message, error) {
	g.mu.Lock()
	g.calls++
	gate := g.gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.Message{}, ctx.Err()
		}
	}

	if len(history) == 1 {
		return models.Message{Role: models.RoleModel, Content: "What is **" + history[0].Subject + "**?"}, nil
	}
	return models.Message{Role: models.RoleModel, Content: "Good answer."}, nil
}

func (g *mockGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (s *mockStore) Topics(_ context.Context, clientID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.topics[clientID]), nil
}

func (s *mockStore) AddTopic(_ context.Context, clientID, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.topics == nil {
		s.topics = make(map[string][]string)
	}
	if !slices.Contains(s.topics[clientID], topic) {
		s.topics[clientID] = append(s.topics[clientID], topic)
	}
	return nil
}

func (s *mockStore) ClearTopics(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.topics, clientID)
	return nil
}

func newMain(t *testing.T, gen study.Generator, store handlers.Store) handlers.Main {
	t.Helper()

	prompts, err := study.NewPromptBuilder("")
	if err != nil {
		t.Fatal(err)
	}

	main, err := handlers.NewMain(gen, store, handlers.Options{Prompts: prompts}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}
	t.Cleanup(func() {
		_ = main.Shutdown(context.Background())
	})

	// Load the page once so the test client owns a session.
	main.HandleHome(httptest.NewRecorder(), formRequest(http.MethodGet, "/", nil))
	return main
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "teachme_client", Value: testClient})
	return req
}

func home(t *testing.T, main handlers.Main) string {
	t.Helper()

	w := httptest.NewRecorder()
	main.HandleHome(w, formRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("HandleHome() status = %v, want %v", w.Code, http.StatusOK)
	}
	return w.Body.String()
}

// waitForHome polls the home page until it contains want.
func waitForHome(t *testing.T, main handlers.Main, want string) string {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		body := home(t, main)
		if strings.Contains(body, want) {
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("home page never contained %q, last body:\n%s", want, body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewMain(t *testing.T) {
	main, err := handlers.NewMain(&mockGenerator{}, &mockStore{}, handlers.Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}

	if main.Shutdown(context.Background()) != nil {
		t.Error("Shutdown() should not return error")
	}
}

func TestHandleHomeIssuesClientCookie(t *testing.T) {
	main := newMain(t, &mockGenerator{}, &mockStore{})

	w := httptest.NewRecorder()
	main.HandleHome(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("HandleHome() status = %v, want %v", w.Code, http.StatusOK)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "teachme_client" || cookies[0].Value == "" {
		t.Errorf("HandleHome() cookies = %+v, want a teachme_client cookie", cookies)
	}

	body := w.Body.String()
	for _, want := range []string{"Which topic do you want to study?", "HTML", "CSS", "Python", "Javascript", "No topics studied yet."} {
		if !strings.Contains(body, want) {
			t.Errorf("HandleHome() body does not contain %q", want)
		}
	}
}

func TestHandleHomeKeepsExistingCookie(t *testing.T) {
	main := newMain(t, &mockGenerator{}, &mockStore{})

	w := httptest.NewRecorder()
	main.HandleHome(w, formRequest(http.MethodGet, "/", nil))

	if cookies := w.Result().Cookies(); len(cookies) != 0 {
		t.Errorf("HandleHome() cookies = %+v, want none", cookies)
	}
}

func TestHandleSubmitStudySession(t *testing.T) {
	gen := &mockGenerator{}
	store := &mockStore{}
	main := newMain(t, gen, store)

	w := httptest.NewRecorder()
	main.HandleSubmit(w, formRequest(http.MethodPost, "/submit", url.Values{"message": {"Go"}}))
	if w.Code != http.StatusAccepted {
		t.Fatalf("HandleSubmit() status = %v, want %v", w.Code, http.StatusAccepted)
	}

	body := waitForHome(t, main, "<strong>Go</strong>")
	if !strings.Contains(body, "Type your answer") {
		t.Errorf("started page does not ask for an answer:\n%s", body)
	}

	w = httptest.NewRecorder()
	main.HandleSubmit(w, formRequest(http.MethodPost, "/submit", url.Values{"message": {"A language."}}))
	if w.Code != http.StatusAccepted {
		t.Fatalf("HandleSubmit() status = %v, want %v", w.Code, http.StatusAccepted)
	}

	body = waitForHome(t, main, "Good answer.")
	for _, want := range []string{"A language.", "Study another topic", "autofocus"} {
		if !strings.Contains(body, want) {
			t.Errorf("done page does not contain %q", want)
		}
	}
	if strings.Contains(body, `id="input-form"`) {
		t.Error("done page still shows the input box")
	}

	topics, _ := store.Topics(context.Background(), testClient)
	if !slices.Equal(topics, []string{"Go"}) {
		t.Errorf("stored topics = %v, want [Go]", topics)
	}
	if gen.Calls() != 2 {
		t.Errorf("generator calls = %d, want 2", gen.Calls())
	}
}

func TestHandleSubmitEmptyMessage(t *testing.T) {
	gen := &mockGenerator{}
	main := newMain(t, gen, &mockStore{})

	w := httptest.NewRecorder()
	main.HandleSubmit(w, formRequest(http.MethodPost, "/submit", url.Values{"message": {"   "}}))

	if w.Code != http.StatusNoContent {
		t.Errorf("HandleSubmit() status = %v, want %v", w.Code, http.StatusNoContent)
	}
	if gen.Calls() != 0 {
		t.Errorf("generator calls = %d, want 0", gen.Calls())
	}
}

func TestHandleSubmitWhileLoading(t *testing.T) {
	gen := &mockGenerator{gate: make(chan struct{})}
	main := newMain(t, gen, &mockStore{})

	w := httptest.NewRecorder()
	main.HandleSubmit(w, formRequest(http.MethodPost, "/submit", url.Values{"message": {"Go"}}))
	if w.Code != http.StatusAccepted {
		t.Fatalf("HandleSubmit() status = %v, want %v", w.Code, http.StatusAccepted)
	}
	waitForHome(t, main, `class="loading"`)

	w = httptest.NewRecorder()
	main.HandleSubmit(w, formRequest(http.MethodPost, "/submit", url.Values{"message": {"Rust"}}))
	if w.Code != http.StatusConflict {
		t.Errorf("HandleSubmit() status = %v, want %v", w.Code, http.StatusConflict)
	}

	close(gen.gate)
	waitForHome(t, main, "<strong>Go</strong>")
}

func TestHandleReset(t *testing.T) {
	main := newMain(t, &mockGenerator{}, &mockStore{})

	main.HandleSubmit(httptest.NewRecorder(), formRequest(http.MethodPost, "/submit", url.Values{"message": {"Go"}}))
	waitForHome(t, main, "<strong>Go</strong>")

	w := httptest.NewRecorder()
	main.HandleReset(w, formRequest(http.MethodPost, "/reset", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("HandleReset() status = %v, want %v", w.Code, http.StatusNoContent)
	}

	body := home(t, main)
	if !strings.Contains(body, "Which topic do you want to study?") {
		t.Errorf("reset page is not the home panel:\n%s", body)
	}
	if !strings.Contains(body, `data-topic="Go"`) {
		t.Error("reset page lost the topic history")
	}
}

func TestHandleSuggestion(t *testing.T) {
	main := newMain(t, &mockGenerator{}, &mockStore{})

	w := httptest.NewRecorder()
	main.HandleSuggestion(w, formRequest(http.MethodPost, "/suggestion", url.Values{"topic": {"Python"}}))
	if w.Code != http.StatusNoContent {
		t.Fatalf("HandleSuggestion() status = %v, want %v", w.Code, http.StatusNoContent)
	}
	if body := home(t, main); !strings.Contains(body, ">Python</textarea>") {
		t.Errorf("input box does not contain the suggestion:\n%s", body)
	}

	w = httptest.NewRecorder()
	main.HandleSuggestion(w, formRequest(http.MethodPost, "/suggestion", url.Values{}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("HandleSuggestion() status = %v, want %v", w.Code, http.StatusBadRequest)
	}
}

func TestHandleClearHistory(t *testing.T) {
	tests := []struct {
		name       string
		storeErr   error
		wantStatus int
		wantTopics []string
	}{
		{
			name:       "clears topics",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "store failure",
			storeErr:   errors.New("disk full"),
			wantStatus: http.StatusInternalServerError,
			wantTopics: []string{"Go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{
				topics: map[string][]string{testClient: {"Go"}},
				err:    tt.storeErr,
			}
			main := newMain(t, &mockGenerator{}, store)

			w := httptest.NewRecorder()
			main.HandleClearHistory(w, formRequest(http.MethodPost, "/history/clear", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("HandleClearHistory() status = %v, want %v", w.Code, tt.wantStatus)
			}
			topics, _ := store.Topics(context.Background(), testClient)
			if !slices.Equal(topics, tt.wantTopics) {
				t.Errorf("topics = %v, want %v", topics, tt.wantTopics)
			}
		})
	}
}

func TestHandleSSEPublishesUpdates(t *testing.T) {
	main := newMain(t, &mockGenerator{}, &mockStore{})

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", main.HandleSSE)
	mux.HandleFunc("/suggestion", main.HandleSuggestion)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// The subscription is registered asynchronously, so keep changing the state until events arrive.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				main.HandleSuggestion(httptest.NewRecorder(),
					formRequest(http.MethodPost, "/suggestion", url.Values{"topic": {"Python"}}))
			}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.AddCookie(&http.Cookie{Name: "teachme_client", Value: testClient})
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse error = %v", err)
	}
	defer res.Body.Close()

	seen := map[string]bool{}
	for ev, err := range sse.Read(res.Body, nil) {
		if err != nil {
			t.Fatalf("reading events: %v", err)
		}
		switch ev.Type {
		case "content":
			if !strings.Contains(ev.Data, ">Python</textarea>") {
				t.Errorf("content event = %q, want the suggestion in the input", ev.Data)
			}
		case "sidebar":
			if !strings.Contains(ev.Data, `data-topic="HTML"`) {
				t.Errorf("sidebar event = %q, want the suggestions", ev.Data)
			}
		}
		seen[ev.Type] = true
		if seen["content"] && seen["sidebar"] {
			break
		}
	}

	if !seen["content"] || !seen["sidebar"] {
		t.Errorf("events seen = %v, want content and sidebar", seen)
	}
}

func TestHandleSSERejectsUnknownClient(t *testing.T) {
	main := newMain(t, &mockGenerator{}, &mockStore{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	w := httptest.NewRecorder()
	main.HandleSSE(w, httptest.NewRequest(http.MethodGet, "/sse", nil).WithContext(ctx))

	if strings.Contains(w.Body.String(), "event:") {
		t.Errorf("HandleSSE() streamed events without a client cookie: %q", w.Body.String())
	}
}

func TestHandlersRejectUnknownClient(t *testing.T) {
	gen := &mockGenerator{}
	main := newMain(t, gen, &mockStore{})

	tests := []struct {
		name    string
		handler http.HandlerFunc
		target  string
		form    url.Values
	}{
		{name: "submit", handler: main.HandleSubmit, target: "/submit", form: url.Values{"message": {"Go"}}},
		{name: "reset", handler: main.HandleReset, target: "/reset"},
		{name: "suggestion", handler: main.HandleSuggestion, target: "/suggestion", form: url.Values{"topic": {"Go"}}},
		{name: "clear history", handler: main.HandleClearHistory, target: "/history/clear"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, cookie := range []*http.Cookie{nil, {Name: "teachme_client", Value: "never-loaded"}} {
				req := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.form.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				if cookie != nil {
					req.AddCookie(cookie)
				}

				w := httptest.NewRecorder()
				tt.handler(w, req)

				if w.Code != http.StatusNotFound {
					t.Errorf("status with cookie %v = %v, want %v", cookie, w.Code, http.StatusNotFound)
				}
				if cookies := w.Result().Cookies(); len(cookies) != 0 {
					t.Errorf("cookies with cookie %v = %+v, want none", cookie, cookies)
				}
			}
		})
	}

	if gen.Calls() != 0 {
		t.Errorf("generator calls = %d, want 0", gen.Calls())
	}
}
