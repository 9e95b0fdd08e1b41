package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"timeronline/backend/internal/broadcast"
	"timeronline/backend/internal/db"
	"timeronline/backend/internal/handler"
	"timeronline/backend/internal/repository"
	"timeronline/backend/internal/router"
	"timeronline/backend/internal/service"
)

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Guest bool   `json:"guest"`
	} `json:"user"`
}

type timerBody struct {
	ID      string `json:"id"`
	Token   string `json:"token"`
	Version int    `json:"version"`
	Status  string `json:"status"`
	Display string `json:"display"`
	State   struct {
		Type   string `json:"type"`
		Active bool   `json:"active"`
	} `json:"state"`
}

type timerEnvelope struct {
	Timer timerBody `json:"timer"`
}

type listEnvelope struct {
	Timers []timerBody `json:"timers"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			Timer timerBody `json:"timer"`
		} `json:"details"`
	} `json:"error"`
}

type liveEnvelope struct {
	Type    string     `json:"type"`
	TimerID string     `json:"timerId"`
	Version int        `json:"version"`
	Timer   *timerBody `json:"timer"`
}

func TestTimerSyncAndConflict(t *testing.T) {
	engine := setupTestEngine(t)

	user1 := registerUser(t, engine, "user1@example.com", "123456")
	user2 := guestUser(t, engine)

	created := createTimer(t, engine, user1.Token, map[string]interface{}{
		"type":      "countdown",
		"mode":      "duration",
		"duration":  300,
		"timerName": "tea",
	})
	if created.Version != 1 || created.Status != "idle" || created.Display != "00:05:00.00" {
		t.Fatalf("unexpected created timer %+v", created)
	}

	status, _ := requestJSON(t, engine, http.MethodPost, "/api/timers/"+created.ID+"/toggle", user1.Token, map[string]int{
		"baseVersion": created.Version,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on toggle, got %d", status)
	}

	// A second device still holding version 1 must be told about the change.
	status, rawConflict := requestJSON(t, engine, http.MethodPost, "/api/timers/"+created.ID+"/toggle", user1.Token, map[string]int{
		"baseVersion": created.Version,
	})
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for stale version, got %d", status)
	}
	var conflictResp apiErrorEnvelope
	if err := json.Unmarshal(rawConflict, &conflictResp); err != nil {
		t.Fatalf("unmarshal conflict response: %v", err)
	}
	if conflictResp.Error.Code != "state_conflict" {
		t.Fatalf("expected state_conflict, got %s", conflictResp.Error.Code)
	}
	latest := conflictResp.Error.Details.Timer
	if latest.Version != 2 || !latest.State.Active {
		t.Fatalf("conflict must carry the current timer, got %+v", latest)
	}

	status, _ = requestJSON(t, engine, http.MethodPost, "/api/timers/"+created.ID+"/reset", user1.Token, map[string]int{
		"baseVersion": latest.Version,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on reset, got %d", status)
	}

	// Owners are isolated from each other.
	status, _ = requestJSON(t, engine, http.MethodGet, "/api/timers/"+created.ID, user2.Token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for other owner, got %d", status)
	}
	if timers := listTimers(t, engine, user2.Token); len(timers) != 0 {
		t.Fatalf("expected no timers for user2, got %d", len(timers))
	}
	if timers := listTimers(t, engine, user1.Token); len(timers) != 1 || timers[0].Version != 3 {
		t.Fatalf("unexpected timers for user1 %+v", timers)
	}
}

func TestToggleWithoutBodySkipsVersionCheck(t *testing.T) {
	engine := setupTestEngine(t)
	user := guestUser(t, engine)
	created := createTimer(t, engine, user.Token, map[string]interface{}{"type": "stopwatch"})

	status, body := requestJSON(t, engine, http.MethodPost, "/api/timers/"+created.ID+"/toggle", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	var resp timerEnvelope
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal toggle response: %v", err)
	}
	if resp.Timer.Status != "paused" {
		t.Fatalf("expected running stopwatch to pause, got %s", resp.Timer.Status)
	}
}

func TestShareAndImport(t *testing.T) {
	engine := setupTestEngine(t)
	owner := guestUser(t, engine)
	other := guestUser(t, engine)

	created := createTimer(t, engine, owner.Token, map[string]interface{}{
		"type":     "countdown",
		"duration": 90,
	})

	status, body := requestJSON(t, engine, http.MethodGet, "/api/timers/"+created.ID+"/share", owner.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on share, got %d", status)
	}
	var links struct {
		Token    string `json:"token"`
		URL      string `json:"url"`
		ShareURL string `json:"shareUrl"`
	}
	if err := json.Unmarshal(body, &links); err != nil {
		t.Fatalf("unmarshal share response: %v", err)
	}
	if links.Token != created.Token || !strings.HasSuffix(links.URL, "/#*"+created.Token) {
		t.Fatalf("unexpected share links %+v", links)
	}

	status, body = requestJSON(t, engine, http.MethodPost, "/api/timers/import", other.Token, map[string]string{
		"token": links.URL[strings.Index(links.URL, "#"):],
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on import, got %d: %s", status, body)
	}
	var imported struct {
		Timer  timerBody `json:"timer"`
		Format string    `json:"format"`
	}
	if err := json.Unmarshal(body, &imported); err != nil {
		t.Fatalf("unmarshal import response: %v", err)
	}
	if !strings.HasPrefix(imported.Timer.ID, "shared_") || imported.Timer.Token != created.Token {
		t.Fatalf("unexpected imported timer %+v", imported.Timer)
	}

	status, body = requestJSON(t, engine, http.MethodPost, "/api/timers/import", other.Token, map[string]string{"token": "x"})
	if status != http.StatusBadRequest || !strings.Contains(string(body), "invalid_token") {
		t.Fatalf("expected invalid_token, got %d: %s", status, body)
	}
}

func TestPublicTokenEndpoints(t *testing.T) {
	engine := setupTestEngine(t)

	status, body := requestJSON(t, engine, http.MethodGet, "/api/decode?v=garbage", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"format":"default"`) {
		t.Fatalf("unexpected decode response %d: %s", status, body)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/preview?v=B,BA", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"typeLabel":"Stopwatch"`) {
		t.Fatalf("unexpected preview response %d: %s", status, body)
	}

	status, _ = requestJSON(t, engine, http.MethodGet, "/api/share", "", nil)
	if status != http.StatusFound {
		t.Fatalf("expected redirect for empty token, got %d", status)
	}

	status, body = requestJSON(t, engine, http.MethodGet, "/api/share?v=B,BA", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), "#*v=B,BA") {
		t.Fatalf("unexpected share page %d: %s", status, body)
	}
}

func TestTimersRequireAuth(t *testing.T) {
	engine := setupTestEngine(t)
	status, _ := requestJSON(t, engine, http.MethodGet, "/api/timers", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestLiveStreamDeliversUpdates(t *testing.T) {
	server := httptest.NewServer(setupTestEngine(t))
	defer server.Close()

	user := guestUser(t, server.Config.Handler)
	created := createTimer(t, server.Config.Handler, user.Token, map[string]interface{}{
		"type":     "countdown",
		"duration": 60,
	})

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/timers/" + created.ID + "/live?access_token=" + user.Token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial live stream: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	snapshot := readLive(t, conn)
	if snapshot.Type != "snapshot" || snapshot.Version != 1 || snapshot.Timer == nil {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	status, _ := requestJSON(t, server.Config.Handler, http.MethodPost, "/api/timers/"+created.ID+"/toggle", user.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on toggle, got %d", status)
	}

	update := readLive(t, conn)
	if update.Type != string(broadcast.EventUpdated) || update.Version != 2 || update.Timer == nil || update.Timer.Status != "running" {
		t.Fatalf("unexpected update %+v", update)
	}
}

func TestCORSPreflight(t *testing.T) {
	engine := setupTestEngine(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
}

func setupTestEngine(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if _, err := db.RunMigrations(database, migrationsDir); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	clk := clockwork.NewRealClock()
	bus := broadcast.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })

	userRepo := repository.NewUserRepository(database)
	timerRepo := repository.NewTimerRepository(database)
	authService := service.NewAuthService(userRepo, clk, "test-secret", 24*time.Hour)
	timerService := service.NewTimerService(timerRepo, bus, clk, "http://localhost:5173")
	t.Cleanup(timerService.Close)
	shareService := service.NewShareService(clk, "http://localhost:5173", time.UTC)

	origins := []string{"http://localhost:5173"}
	return router.New(
		authService,
		handler.NewAuthHandler(authService),
		handler.NewTimerHandler(timerService),
		handler.NewLiveHandler(timerService, origins),
		handler.NewShareHandler(shareService),
		origins,
	)
}

func registerUser(t *testing.T, server http.Handler, email, password string) authResponse {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s failed with status %d: %s", email, status, string(body))
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("empty token for user %s", email)
	}
	return resp
}

func guestUser(t *testing.T, server http.Handler) authResponse {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/guest", "", nil)
	if status != http.StatusCreated {
		t.Fatalf("guest failed with status %d: %s", status, string(body))
	}
	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal guest response: %v", err)
	}
	if resp.Token == "" || !resp.User.Guest {
		t.Fatalf("unexpected guest response %+v", resp)
	}
	return resp
}

func createTimer(t *testing.T, server http.Handler, token string, body map[string]interface{}) timerBody {
	t.Helper()
	status, raw := requestJSON(t, server, http.MethodPost, "/api/timers", token, body)
	if status != http.StatusCreated {
		t.Fatalf("create timer failed with status %d: %s", status, string(raw))
	}
	var resp timerEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal timer response: %v", err)
	}
	return resp.Timer
}

func listTimers(t *testing.T, server http.Handler, token string) []timerBody {
	t.Helper()
	status, raw := requestJSON(t, server, http.MethodGet, "/api/timers", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list timers failed with status %d: %s", status, string(raw))
	}
	var resp listEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal list response: %v", err)
	}
	return resp.Timers
}

func readLive(t *testing.T, conn *websocket.Conn) liveEnvelope {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	var msg liveEnvelope
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read live message: %v", err)
	}
	return msg
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path, token string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		payload = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder.Code, recorder.Body.Bytes()
}
