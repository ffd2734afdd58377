package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"strava-mirror/internal/config"
	"strava-mirror/internal/database"
	"strava-mirror/internal/oauth"
	"strava-mirror/internal/session"
	"strava-mirror/internal/strava"
	"strava-mirror/internal/syncer"
	"strava-mirror/internal/worker"
)

type fullSyncCall struct {
	athleteID   int64
	accessToken string
}

type recordingSyncer struct {
	calls []fullSyncCall
}

func (s *recordingSyncer) FullSync(ctx context.Context, athlete *strava.Athlete, accessToken string) (*syncer.Result, error) {
	s.calls = append(s.calls, fullSyncCall{athleteID: athlete.ID, accessToken: accessToken})
	return &syncer.Result{}, nil
}

// recordingLauncher captures submitted tasks along with the state of the
// response at the moment of submission
type recordingLauncher struct {
	recorder        *httptest.ResponseRecorder
	tasks           []worker.Task
	flushedAtSubmit []bool
	bodyAtSubmit    []string
}

func (l *recordingLauncher) Submit(name string, task worker.Task) bool {
	l.tasks = append(l.tasks, task)
	if l.recorder != nil {
		l.flushedAtSubmit = append(l.flushedAtSubmit, l.recorder.Flushed)
		l.bodyAtSubmit = append(l.bodyAtSubmit, l.recorder.Body.String())
	}
	return true
}

func setupOAuthHandlerTest(t *testing.T, tokenHandler http.HandlerFunc) (*OAuthHandler, *database.DB, *recordingSyncer, *recordingLauncher) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", tokenHandler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	cfg := &config.Config{
		StravaClientID:     "test_client_id",
		StravaClientSecret: "test_client_secret",
		StravaRedirectURI:  "http://localhost:4101/auth/strava/callback",
		StravaAPIURL:       server.URL + "/api/v3",
		StravaOAuthURL:     server.URL + "/oauth",
	}

	client := strava.NewClient(cfg)
	manager := oauth.NewManager(client, db, session.NewIssuer("test-secret", time.Hour))
	fullSyncer := &recordingSyncer{}
	launcher := &recordingLauncher{}

	return NewOAuthHandler(manager, fullSyncer, launcher, "app"), db, fullSyncer, launcher
}

func stubTokenEndpoint(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		if r.FormValue("code") != "test_code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Bad Request"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"token_type":    "Bearer",
			"access_token":  "A",
			"refresh_token": "R",
			"expires_at":    time.Now().Add(6 * time.Hour).Unix(),
			"athlete": map[string]any{
				"id":        42,
				"firstname": "Ann",
				"lastname":  "Smith",
				"profile":   "https://example.com/ann.jpg",
			},
		})
	}
}

// deepLinkFrom extracts the link the page forwards to from its script
func deepLinkFrom(t *testing.T, body string) *url.URL {
	t.Helper()

	const prefix = "window.location.replace("
	start := strings.Index(body, prefix)
	if start < 0 {
		t.Fatalf("Expected a script redirect in page, got %s", body)
	}
	rest := body[start+len(prefix):]
	end := strings.Index(rest, ");")

	var link string
	if err := json.Unmarshal([]byte(rest[:end]), &link); err != nil {
		t.Fatalf("Failed to decode deep link: %v", err)
	}

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("Failed to parse deep link %q: %v", link, err)
	}
	return u
}

func TestHandleAuthStart(t *testing.T) {
	handler, _, _, _ := setupOAuthHandlerTest(t, stubTokenEndpoint(t))

	req := httptest.NewRequest(http.MethodGet, "/auth/strava", nil)
	w := httptest.NewRecorder()

	handler.HandleAuthStart(w, req)

	if w.Code != http.StatusFound {
		t.Errorf("Expected status 302, got %d", w.Code)
	}

	location := w.Header().Get("Location")
	if !strings.Contains(location, "/oauth/authorize") {
		t.Errorf("Expected redirect to the authorize endpoint, got %s", location)
	}
	if !strings.Contains(location, "client_id=test_client_id") {
		t.Error("Expected client_id in redirect URL")
	}
}

func TestHandleCallback_Success(t *testing.T) {
	handler, db, fullSyncer, launcher := setupOAuthHandlerTest(t, stubTokenEndpoint(t))

	req := httptest.NewRequest(http.MethodGet, "/auth/strava/callback?code=test_code&scope=read,activity:read_all", nil)
	w := httptest.NewRecorder()
	launcher.recorder = w

	handler.HandleCallback(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Length") == "" {
		t.Error("Expected explicit Content-Length")
	}

	link := deepLinkFrom(t, w.Body.String())
	if link.Scheme != "app" || link.Host != "auth-success" {
		t.Errorf("Expected app://auth-success, got %s", link)
	}
	q := link.Query()
	if q.Get("athleteId") != "42" {
		t.Errorf("Expected athleteId=42, got %s", q.Get("athleteId"))
	}
	if q.Get("firstName") != "Ann" || q.Get("lastName") != "Smith" {
		t.Errorf("Unexpected name params %v", q)
	}
	if q.Get("token") == "" {
		t.Error("Expected a session token in the deep link")
	}

	// Identity and token were persisted before responding
	ctx := context.Background()
	if athlete, _ := db.GetAthlete(ctx, 42); athlete == nil {
		t.Error("Expected athlete 42 to be stored")
	}
	token, _ := db.GetToken(ctx, 42)
	if token == nil || token.AccessToken != "A" {
		t.Errorf("Expected token A to be stored, got %+v", token)
	}

	// The sync is launched once, after the full page was flushed
	if len(launcher.tasks) != 1 {
		t.Fatalf("Expected 1 background task, got %d", len(launcher.tasks))
	}
	if !launcher.flushedAtSubmit[0] {
		t.Error("Expected response to be flushed before the sync was launched")
	}
	if !strings.Contains(launcher.bodyAtSubmit[0], "auth-success") {
		t.Error("Expected complete page to be written before the sync was launched")
	}
	if len(fullSyncer.calls) != 0 {
		t.Error("Expected sync to run only when the task is executed")
	}

	if err := launcher.tasks[0](context.Background()); err != nil {
		t.Fatalf("Background task failed: %v", err)
	}
	if len(fullSyncer.calls) != 1 || fullSyncer.calls[0].athleteID != 42 || fullSyncer.calls[0].accessToken != "A" {
		t.Errorf("Expected full sync for athlete 42 with token A, got %+v", fullSyncer.calls)
	}
}

func TestHandleCallback_SyncWaitsForBusyPool(t *testing.T) {
	handler, _, fullSyncer, _ := setupOAuthHandlerTest(t, stubTokenEndpoint(t))

	pool := worker.NewPool(1)
	handler.launcher = pool

	release := make(chan struct{})
	started := make(chan struct{})
	pool.Submit("blocking", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	req := httptest.NewRequest(http.MethodGet, "/auth/strava/callback?code=test_code", nil)
	w := httptest.NewRecorder()

	handler.HandleCallback(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if link := deepLinkFrom(t, w.Body.String()); link.Host != "auth-success" {
		t.Fatalf("Expected auth-success deep link, got %s", link)
	}

	close(release)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if len(fullSyncer.calls) != 1 || fullSyncer.calls[0].athleteID != 42 {
		t.Errorf("Expected the full sync to run once a slot was free, got %+v", fullSyncer.calls)
	}
}

func TestHandleCallback_ErrorParameter(t *testing.T) {
	handler, db, _, launcher := setupOAuthHandlerTest(t, stubTokenEndpoint(t))

	req := httptest.NewRequest(http.MethodGet, "/auth/strava/callback?error=access_denied", nil)
	w := httptest.NewRecorder()

	handler.HandleCallback(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	link := deepLinkFrom(t, w.Body.String())
	if link.Host != "auth-error" {
		t.Errorf("Expected auth-error deep link, got %s", link)
	}
	if !strings.Contains(link.Query().Get("message"), "access_denied") {
		t.Errorf("Expected message to carry the provider error, got %q", link.Query().Get("message"))
	}

	if len(launcher.tasks) != 0 {
		t.Error("Expected no background task")
	}
	if athlete, _ := db.GetAthlete(context.Background(), 42); athlete != nil {
		t.Error("Expected nothing persisted")
	}
}

func TestHandleCallback_MissingCode(t *testing.T) {
	handler, _, _, launcher := setupOAuthHandlerTest(t, stubTokenEndpoint(t))

	req := httptest.NewRequest(http.MethodGet, "/auth/strava/callback", nil)
	w := httptest.NewRecorder()

	handler.HandleCallback(w, req)

	link := deepLinkFrom(t, w.Body.String())
	if link.Host != "auth-error" {
		t.Errorf("Expected auth-error deep link, got %s", link)
	}
	if len(launcher.tasks) != 0 {
		t.Error("Expected no background task")
	}
}

func TestHandleCallback_ExchangeFails(t *testing.T) {
	handler, db, _, launcher := setupOAuthHandlerTest(t, stubTokenEndpoint(t))

	req := httptest.NewRequest(http.MethodGet, "/auth/strava/callback?code=expired_code", nil)
	w := httptest.NewRecorder()

	handler.HandleCallback(w, req)

	link := deepLinkFrom(t, w.Body.String())
	if link.Host != "auth-error" {
		t.Errorf("Expected auth-error deep link, got %s", link)
	}
	if !strings.Contains(link.Query().Get("message"), "Bad Request") {
		t.Errorf("Expected upstream message, got %q", link.Query().Get("message"))
	}
	if len(launcher.tasks) != 0 {
		t.Error("Expected no background task after a failed exchange")
	}
	if token, _ := db.GetToken(context.Background(), 42); token != nil {
		t.Error("Expected no token stored")
	}
}

func TestDeepLinkPageEscapesLink(t *testing.T) {
	handler, _, _, _ := setupOAuthHandlerTest(t, stubTokenEndpoint(t))
	w := httptest.NewRecorder()

	handler.writeFailure(w, &testError{msg: `</script><script>alert("x")</script>`})

	body := w.Body.String()
	if strings.Contains(body, `<script>alert`) {
		t.Error("Expected message to be escaped in the page")
	}
	link := deepLinkFrom(t, body)
	if link.Query().Get("message") != `</script><script>alert("x")</script>` {
		t.Errorf("Expected message to survive round trip, got %q", link.Query().Get("message"))
	}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
