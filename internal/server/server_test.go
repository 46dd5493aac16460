package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/drydock/internal/challenge"
	"github.com/zulandar/drydock/internal/config"
	"github.com/zulandar/drydock/internal/driver"
	"github.com/zulandar/drydock/internal/lifecycle"
	"github.com/zulandar/drydock/internal/models"
	"github.com/zulandar/drydock/internal/registry"
	"github.com/zulandar/drydock/internal/settings"
)

const adminToken = "admin-secret"

type fixture struct {
	db     *gorm.DB
	cat    *challenge.Catalog
	drv    *driver.Fake
	store  *settings.Store
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Instance{},
		&models.Challenge{},
		&models.Solve{},
		&models.Setting{},
	); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	store, err := settings.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Seed(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reg := registry.New(db)
	cat := challenge.NewCatalog(db)
	drv := driver.NewFake()
	orch := lifecycle.New(reg, cat, drv, store, nil)

	router, err := NewRouter(StartOpts{
		Orchestrator: orch,
		Registry:     reg,
		Catalog:      cat,
		Store:        store,
		Driver:       drv,
		Auth:         config.AuthConfig{AdminToken: adminToken},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return &fixture{db: db, cat: cat, drv: drv, store: store, router: router}
}

func (f *fixture) addChallenge(t *testing.T, name string) *models.Challenge {
	t.Helper()
	ch := &models.Challenge{Name: name, Type: "container", Image: "example/" + name, Port: 1337}
	if err := f.cat.Upsert(ch); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return ch
}

// participantPost sends a participant API request with identity headers.
func (f *fixture) participantPost(t *testing.T, path string, userID uint, chalID uint) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]uint{"chal_id": chalID})
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerUser, fmt.Sprintf("%d", userID))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) adminPost(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestParticipant_RequiresIdentityHeader(t *testing.T) {
	f := newFixture(t)
	body, _ := json.Marshal(map[string]uint{"chal_id": 1})
	req := httptest.NewRequest(http.MethodPost, "/api/request", bytes.NewReader(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
}

func TestParticipant_SharedTokenEnforcedWhenSet(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")

	// Rebuild router with a participant token.
	reg := registry.New(f.db)
	orch := lifecycle.New(reg, f.cat, f.drv, f.store, nil)
	router, err := NewRouter(StartOpts{
		Orchestrator: orch,
		Registry:     reg,
		Catalog:      f.cat,
		Store:        f.store,
		Driver:       f.drv,
		Auth:         config.AuthConfig{ParticipantToken: "shared", AdminToken: adminToken},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	body, _ := json.Marshal(map[string]uint{"chal_id": ch.ID})
	req := httptest.NewRequest(http.MethodPost, "/api/request", bytes.NewReader(body))
	req.Header.Set(headerUser, "1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("code without token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/request", bytes.NewReader(body))
	req.Header.Set(headerUser, "1")
	req.Header.Set("Authorization", "Bearer shared")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("code with token = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestRequest_CreatesInstance(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")

	w := f.participantPost(t, "/api/request", 1, ch.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	if out["status"] != lifecycle.ResultCreated {
		t.Errorf("status = %v, want created", out["status"])
	}
	if out["port"] != float64(31000) {
		t.Errorf("port = %v, want 31000", out["port"])
	}
}

func TestRequest_ConflictNamesBlockingChallenge(t *testing.T) {
	f := newFixture(t)
	blocking := f.addChallenge(t, "heap-note")
	requested := f.addChallenge(t, "rop-golf")

	if w := f.participantPost(t, "/api/request", 1, blocking.ID); w.Code != http.StatusOK {
		t.Fatalf("first request: %d", w.Code)
	}
	w := f.participantPost(t, "/api/request", 1, requested.ID)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
	if msg := decode(t, w)["error"].(string); !strings.Contains(msg, "heap-note") {
		t.Errorf("error = %q, want blocking challenge named", msg)
	}
}

func TestRequest_UnknownChallenge(t *testing.T) {
	f := newFixture(t)
	w := f.participantPost(t, "/api/request", 1, 999)
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", w.Code)
	}
}

func TestRequest_RuntimeFailureIsGeneric(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")
	f.drv.CreateErr = fmt.Errorf("daemon: no such image example/heap-note")

	w := f.participantPost(t, "/api/request", 1, ch.ID)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", w.Code)
	}
	msg := decode(t, w)["error"].(string)
	if strings.Contains(msg, "daemon") {
		t.Errorf("error %q leaks runtime detail", msg)
	}
}

func TestRunningRenewStop_Flow(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")

	w := f.participantPost(t, "/api/running", 1, ch.ID)
	if out := decode(t, w); out["status"] != lifecycle.StatusStopped {
		t.Errorf("status = %v, want stopped", out["status"])
	}

	if w := f.participantPost(t, "/api/request", 1, ch.ID); w.Code != http.StatusOK {
		t.Fatalf("request: %d", w.Code)
	}

	w = f.participantPost(t, "/api/running", 1, ch.ID)
	if out := decode(t, w); out["status"] != lifecycle.StatusRunning {
		t.Errorf("status = %v, want running", out["status"])
	}

	if w := f.participantPost(t, "/api/renew", 1, ch.ID); w.Code != http.StatusOK {
		t.Errorf("renew: %d: %s", w.Code, w.Body.String())
	}

	if w := f.participantPost(t, "/api/stop", 1, ch.ID); w.Code != http.StatusOK {
		t.Errorf("stop: %d: %s", w.Code, w.Body.String())
	}

	// Stopping again reports no instance.
	if w := f.participantPost(t, "/api/stop", 1, ch.ID); w.Code != http.StatusBadRequest {
		t.Errorf("second stop: %d, want 400", w.Code)
	}
}

func TestReset_ReplacesInstance(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")

	if w := f.participantPost(t, "/api/request", 1, ch.ID); w.Code != http.StatusOK {
		t.Fatalf("request: %d", w.Code)
	}
	w := f.participantPost(t, "/api/reset", 1, ch.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("reset: %d: %s", w.Code, w.Body.String())
	}
	if out := decode(t, w); out["status"] != lifecycle.ResultCreated {
		t.Errorf("status = %v, want created", out["status"])
	}
}

func TestAdmin_RequiresToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/purge", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: code = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/purge", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: code = %d, want 401", w.Code)
	}
}

func TestAdminKill(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")
	if w := f.participantPost(t, "/api/request", 1, ch.ID); w.Code != http.StatusOK {
		t.Fatalf("request: %d", w.Code)
	}

	w := f.adminPost(t, "/api/kill", map[string]string{"container_id": "fake-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("kill: %d: %s", w.Code, w.Body.String())
	}

	w = f.adminPost(t, "/api/kill", map[string]string{"container_id": "fake-1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("second kill: %d, want 400", w.Code)
	}
}

func TestPurge(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")
	if w := f.participantPost(t, "/api/request", 1, ch.ID); w.Code != http.StatusOK {
		t.Fatalf("request: %d", w.Code)
	}

	w := f.adminPost(t, "/api/purge", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("purge: %d: %s", w.Code, w.Body.String())
	}
	if out := decode(t, w); out["purged"] != float64(1) {
		t.Errorf("purged = %v, want 1", out["purged"])
	}
}

func TestImages(t *testing.T) {
	f := newFixture(t)
	f.drv.ImageTags = []string{"example/heap-note:v1", "example/rop-golf:v1"}

	req := httptest.NewRequest(http.MethodGet, "/api/images", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("images: %d", w.Code)
	}
	out := decode(t, w)
	if imgs := out["images"].([]any); len(imgs) != 2 {
		t.Errorf("images = %v, want 2 entries", imgs)
	}
}

func TestSettingsUpdate(t *testing.T) {
	f := newFixture(t)

	form := url.Values{}
	form.Set(settings.KeyBaseURL, "unix:///var/run/docker.sock")
	form.Set(settings.KeyHostname, "challenges.example.com")
	form.Set(settings.KeyExpiration, "60")
	form.Set(settings.KeyMaxMemory, "1024")
	form.Set(settings.KeyMaxCPU, "1.0")
	form.Set(settings.KeyAssignment, "team")

	req := httptest.NewRequest(http.MethodPost, "/api/settings/update", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("code = %d, want 302: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/settings" {
		t.Errorf("location = %q, want /settings", loc)
	}
	if got := f.store.Get(settings.KeyExpiration); got != "60" {
		t.Errorf("%s = %q, want 60", settings.KeyExpiration, got)
	}
}

func TestSettingsUpdate_MissingKey(t *testing.T) {
	f := newFixture(t)

	form := url.Values{}
	form.Set(settings.KeyBaseURL, "unix:///var/run/docker.sock")

	req := httptest.NewRequest(http.MethodPost, "/api/settings/update", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
	// Nothing was written.
	if got := f.store.Get(settings.KeyExpiration); got != "45" {
		t.Errorf("%s = %q, want 45", settings.KeyExpiration, got)
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")
	if w := f.participantPost(t, "/api/request", 1, ch.ID); w.Code != http.StatusOK {
		t.Fatalf("request: %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "fake-1") {
		t.Error("dashboard does not list the running instance")
	}
}

func TestSettingsPage(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("settings page: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), settings.KeyAssignment) {
		t.Error("settings page is missing the assignment field")
	}
}

func TestChallenges_ListWithValues(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")
	ch.Initial = 500
	ch.Minimum = 100
	ch.Decay = 10
	if err := f.cat.Upsert(ch); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/challenges", nil)
	req.Header.Set(headerUser, "1")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("challenges: %d: %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	list := out["challenges"].([]any)
	if len(list) != 1 {
		t.Fatalf("challenges = %d, want 1", len(list))
	}
	entry := list[0].(map[string]any)
	if entry["name"] != "heap-note" {
		t.Errorf("name = %v", entry["name"])
	}
	if entry["value"] != float64(500) {
		t.Errorf("value = %v, want 500", entry["value"])
	}
}

func TestSolve_RecordsAndDecays(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")
	ch.Initial = 500
	ch.Minimum = 100
	ch.Decay = 10
	if err := f.cat.Upsert(ch); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	w := f.participantPost(t, "/api/solve", 1, ch.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("solve: %d: %s", w.Code, w.Body.String())
	}
	out := decode(t, w)
	value := out["value"].(float64)
	if value >= 500 || value < 100 {
		t.Errorf("value = %v, want decayed below 500", value)
	}
}

func TestUpdateChallenge(t *testing.T) {
	f := newFixture(t)
	ch := f.addChallenge(t, "heap-note")

	w := f.adminPost(t, "/api/challenges/update", map[string]any{
		"chal_id": ch.ID,
		"fields":  map[string]string{"image": "example/heap-note:v2"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d: %s", w.Code, w.Body.String())
	}

	got, err := f.cat.ByID(ch.ID)
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if got.Image != "example/heap-note:v2" {
		t.Errorf("image = %q", got.Image)
	}

	w = f.adminPost(t, "/api/challenges/update", map[string]any{
		"chal_id": ch.ID,
		"fields":  map[string]string{"port": "lots"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad field update: %d, want 400", w.Code)
	}
}

func TestNewRouter_Validation(t *testing.T) {
	if _, err := NewRouter(StartOpts{}); err == nil {
		t.Error("accepted empty opts")
	}
}

func TestTemplatesParse(t *testing.T) {
	if _, err := parseTemplates(); err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	if _, err := templatesFS.ReadFile("templates/dashboard.html"); err != nil {
		t.Errorf("dashboard template missing: %v", err)
	}
	if _, err := templatesFS.ReadFile("templates/settings.html"); err != nil {
		t.Errorf("settings template missing: %v", err)
	}
}
