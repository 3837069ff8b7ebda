package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-index/internal/config"
	"github.com/kozaktomas/face-index/internal/cropper"
	"github.com/kozaktomas/face-index/internal/database/mock"
	"github.com/kozaktomas/face-index/internal/dispatcher"
	"github.com/kozaktomas/face-index/internal/events"
	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/metrics"
	"github.com/kozaktomas/face-index/internal/telegram"
	"github.com/kozaktomas/face-index/internal/vision"
)

type fakeBot struct {
	updates []telegram.Update
	err     error
}

func (f *fakeBot) Handle(_ context.Context, u telegram.Update) error {
	f.updates = append(f.updates, u)
	return f.err
}

type fakeDispatcher struct {
	uploads []events.Upload
	cred    vision.Credential
	err     error
}

func (f *fakeDispatcher) DispatchAll(_ context.Context, uploads []events.Upload, cred vision.Credential) ([]dispatcher.Result, error) {
	f.uploads = append(f.uploads, uploads...)
	f.cred = cred
	results := make([]dispatcher.Result, len(uploads))
	for i, u := range uploads {
		results[i] = dispatcher.Result{SourceKey: u.ObjectKey, Faces: 1, Published: 1}
	}
	return results, f.err
}

type fakeWorker struct {
	tasks []faces.FaceTask
	err   error
}

func (f *fakeWorker) Process(_ context.Context, task faces.FaceTask) (cropper.Result, error) {
	f.tasks = append(f.tasks, task)
	if f.err != nil {
		return cropper.Result{}, f.err
	}
	return cropper.Result{FaceKey: faces.NewKey(), OriginalKey: task.SourceKey, Width: 8, Height: 8}, nil
}

type fakeSigner struct{ err error }

func (f fakeSigner) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.example.com/faces/" + key + "?sig=abc", nil
}

type fixture struct {
	server     *Server
	bot        *fakeBot
	dispatcher *fakeDispatcher
	worker     *fakeWorker
	index      *mock.MockFaceIndex
}

func testConfig() *config.Config {
	return &config.Config{
		Storage:  config.StorageConfig{MediaLinkTTL: 5 * time.Minute},
		Telegram: config.TelegramConfig{WebhookSecret: "s3cret"},
		Web:      config.WebConfig{Host: "127.0.0.1", Port: 0, RequestTimeout: 5 * time.Second},
	}
}

func setupServer(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		bot:        &fakeBot{},
		dispatcher: &fakeDispatcher{},
		worker:     &fakeWorker{},
		index:      mock.NewMockFaceIndex(),
	}
	f.server = NewServer(testConfig(), Dependencies{
		Bot:        f.bot,
		Dispatcher: f.dispatcher,
		Worker:     f.worker,
		Index:      f.index,
		Crops:      fakeSigner{},
		Metrics:    metrics.New(),
		Credential: vision.Credential{AccessToken: "configured", TokenType: "Api-Key"},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

// assertStatusCode checks that the response has the expected status code
func assertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rec.Code != expected {
		t.Errorf("expected status %d, got %d: %s", expected, rec.Code, rec.Body.String())
	}
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	f := setupServer(t)

	rec := f.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assertStatusCode(t, rec, http.StatusOK)
	if decodeOutcome(t, rec)["status"] != "ok" {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	assertStatusCode(t, rec, http.StatusOK)
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing go collector")
	}
}

func TestTelegramWebhook(t *testing.T) {
	update := `{"update_id":5,"message":{"message_id":1,"chat":{"id":2},"text":"/start"}}`

	t.Run("rejects wrong secret", func(t *testing.T) {
		f := setupServer(t)
		rec := f.do(t, http.MethodPost, "/telegram/webhook", update, map[string]string{"X-Telegram-Bot-Api-Secret-Token": "nope"})
		assertStatusCode(t, rec, http.StatusForbidden)
		if len(f.bot.updates) != 0 {
			t.Error("bot must not see unauthenticated updates")
		}
	})

	t.Run("delivers update", func(t *testing.T) {
		f := setupServer(t)
		rec := f.do(t, http.MethodPost, "/telegram/webhook", update, map[string]string{"X-Telegram-Bot-Api-Secret-Token": "s3cret"})
		assertStatusCode(t, rec, http.StatusOK)
		if len(f.bot.updates) != 1 || f.bot.updates[0].Message.Text != "/start" {
			t.Errorf("unexpected updates: %+v", f.bot.updates)
		}
	})

	t.Run("acknowledges send failures", func(t *testing.T) {
		f := setupServer(t)
		f.bot.err = errors.New("telegram down")
		rec := f.do(t, http.MethodPost, "/telegram/webhook", update, map[string]string{"X-Telegram-Bot-Api-Secret-Token": "s3cret"})
		assertStatusCode(t, rec, http.StatusOK)
	})

	t.Run("invalid json", func(t *testing.T) {
		f := setupServer(t)
		rec := f.do(t, http.MethodPost, "/telegram/webhook", "{", map[string]string{"X-Telegram-Bot-Api-Secret-Token": "s3cret"})
		assertStatusCode(t, rec, http.StatusBadRequest)
	})
}

func TestUploadTrigger(t *testing.T) {
	envelope := `{"messages":[{"details":{"bucket_id":"photos","object_id":"a.jpg"}},{"details":{"bucket_id":"photos","object_id":"b.jpg"}}]}`

	t.Run("uses request credential", func(t *testing.T) {
		f := setupServer(t)
		rec := f.do(t, http.MethodPost, "/api/v1/triggers/upload", envelope, map[string]string{"Authorization": "Bearer iam-token"})
		assertStatusCode(t, rec, http.StatusOK)

		out := decodeOutcome(t, rec)
		if out["ok"] != true {
			t.Errorf("expected ok outcome, got %v", out)
		}
		if results, _ := out["results"].([]any); len(results) != 2 {
			t.Errorf("expected 2 results, got %v", out["results"])
		}
		if len(f.dispatcher.uploads) != 2 {
			t.Errorf("every message must be dispatched, got %d", len(f.dispatcher.uploads))
		}
		if f.dispatcher.cred != (vision.Credential{AccessToken: "iam-token", TokenType: "Bearer"}) {
			t.Errorf("unexpected credential %+v", f.dispatcher.cred)
		}
	})

	t.Run("falls back to configured credential", func(t *testing.T) {
		f := setupServer(t)
		f.do(t, http.MethodPost, "/api/v1/triggers/upload", envelope, nil)
		if f.dispatcher.cred.AccessToken != "configured" {
			t.Errorf("expected fallback credential, got %+v", f.dispatcher.cred)
		}
	})

	t.Run("retryable failure is 503", func(t *testing.T) {
		f := setupServer(t)
		f.dispatcher.err = faces.ErrFetch
		rec := f.do(t, http.MethodPost, "/api/v1/triggers/upload", envelope, nil)
		assertStatusCode(t, rec, http.StatusServiceUnavailable)
		if out := decodeOutcome(t, rec); out["retryable"] != true {
			t.Errorf("expected retryable outcome, got %v", out)
		}
	})

	t.Run("malformed envelope is dropped", func(t *testing.T) {
		f := setupServer(t)
		rec := f.do(t, http.MethodPost, "/api/v1/triggers/upload", `{"messages":[]}`, nil)
		assertStatusCode(t, rec, http.StatusOK)
		out := decodeOutcome(t, rec)
		if out["ok"] != false || out["error"] != faces.ErrInvalidTask.Error() {
			t.Errorf("unexpected outcome %v", out)
		}
	})
}

func TestFaceTaskTrigger(t *testing.T) {
	task := `{\"img_key\":\"a.jpg\",\"coordinates\":[{\"x\":\"1\",\"y\":\"1\"},{\"x\":\"1\",\"y\":\"9\"},{\"x\":\"9\",\"y\":\"9\"},{\"x\":\"9\",\"y\":\"1\"}]}`
	envelope := `{"messages":[{"details":{"message":{"body":"` + task + `"}}}]}`

	t.Run("processes task", func(t *testing.T) {
		f := setupServer(t)
		rec := f.do(t, http.MethodPost, "/api/v1/triggers/face-task", envelope, nil)
		assertStatusCode(t, rec, http.StatusOK)
		if len(f.worker.tasks) != 1 || f.worker.tasks[0].SourceKey != "a.jpg" {
			t.Errorf("unexpected tasks %+v", f.worker.tasks)
		}
		if out := decodeOutcome(t, rec); out["ok"] != true {
			t.Errorf("expected ok outcome, got %v", out)
		}
	})

	t.Run("dropped task is 200", func(t *testing.T) {
		f := setupServer(t)
		f.worker.err = faces.ErrDecode
		rec := f.do(t, http.MethodPost, "/api/v1/triggers/face-task", envelope, nil)
		assertStatusCode(t, rec, http.StatusOK)
		out := decodeOutcome(t, rec)
		if out["ok"] != false || out["retryable"] == true {
			t.Errorf("unexpected outcome %v", out)
		}
	})

	t.Run("retryable task is 503", func(t *testing.T) {
		f := setupServer(t)
		f.worker.err = faces.ErrPersist
		rec := f.do(t, http.MethodPost, "/api/v1/triggers/face-task", envelope, nil)
		assertStatusCode(t, rec, http.StatusServiceUnavailable)
	})

	t.Run("invalid body is dropped without processing", func(t *testing.T) {
		f := setupServer(t)
		rec := f.do(t, http.MethodPost, "/api/v1/triggers/face-task", `{"messages":[{"details":{"message":{"body":"{}"}}}]}`, nil)
		assertStatusCode(t, rec, http.StatusOK)
		if len(f.worker.tasks) != 0 {
			t.Error("invalid task must not reach the worker")
		}
	})
}

func TestFaceGateway(t *testing.T) {
	f := setupServer(t)
	key := faces.NewKey()
	f.index.AddRow(faces.IndexRow{FaceKey: key, OriginalKey: "a.jpg"})

	rec := f.do(t, http.MethodGet, "/api/v1/faces/"+key, "", nil)
	assertStatusCode(t, rec, http.StatusFound)
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "https://storage.example.com/faces/"+key) {
		t.Errorf("unexpected redirect %q", loc)
	}

	assertStatusCode(t, f.do(t, http.MethodGet, "/api/v1/faces/holiday.jpg", "", nil), http.StatusBadRequest)
	assertStatusCode(t, f.do(t, http.MethodGet, "/api/v1/faces/"+faces.NewKey(), "", nil), http.StatusNotFound)

	f.index.GetError = faces.ErrStoreUnavailable
	assertStatusCode(t, f.do(t, http.MethodGet, "/api/v1/faces/"+key, "", nil), http.StatusServiceUnavailable)
}

func TestOptionalRoutes(t *testing.T) {
	s := NewServer(testConfig(), Dependencies{})
	for _, path := range []string{"/telegram/webhook", "/api/v1/triggers/upload"} {
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected route to be unmounted, got %d", path, rec.Code)
		}
	}
}
