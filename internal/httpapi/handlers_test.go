package httpapi

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"reservation-caller/internal/audit"
	"reservation-caller/internal/calls"
	"reservation-caller/internal/orchestrator"
)

func testRouter(t *testing.T) (*gin.Engine, *calls.MemoryRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	repo := calls.NewMemoryRepo()
	auditSvc := audit.NewService(audit.NewMemoryRepo(), nil)
	repo.Observer = auditSvc

	svc := orchestrator.NewService(repo, orchestrator.Options{
		Audit:         auditSvc,
		PublicBaseURL: "https://caller.example.com",
		Sweep:         orchestrator.SweepConfig{DialTimeout: time.Minute, ConversationTimeout: 10 * time.Minute},
	})

	h := Handlers{Service: svc, Repo: repo}

	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.POST("/webhooks/status", h.WebhookStatus(nil, ""))
	r.POST("/webhooks/voice", h.WebhookVoice(nil, ""))
	r.POST("/webhooks/gather", h.WebhookGather(nil, ""))
	r.POST("/v1/calls/start", h.StartCall)
	r.GET("/v1/calls", h.ListCalls)
	r.GET("/v1/calls/:id", h.GetCall)
	r.POST("/v1/calls/:id/decision", h.ApplyDecision)
	r.POST("/v1/calls/:id/recall", h.Recall)
	r.POST("/v1/admin/sweep", h.AdminSweep)
	return r, repo
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func postForm(r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

const startBody = `{
	"request_id": "req-1",
	"business_name": "Trattoria",
	"business_phone": "+15551234567",
	"date": "2026-02-22",
	"time_preferred": "20:00",
	"party_size": 2,
	"name_for_booking": "Felix"
}`

func TestStartCall_CreatesSimulatedCall(t *testing.T) {
	r, repo := testRouter(t)

	w := postJSON(r, "/v1/calls/start", startBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"simulated":true`) {
		t.Fatalf("expected simulated flag, got %s", w.Body.String())
	}

	c, err := repo.Get(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "req-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Status != calls.StatusDialing {
		t.Fatalf("expected DIALING, got %s", c.Status)
	}

	// Replay returns the existing call.
	w = postJSON(r, "/v1/calls/start", startBody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", w.Code)
	}
}

func TestStartCall_RejectsMalformedPayload(t *testing.T) {
	r, _ := testRouter(t)

	for _, body := range []string{
		`{"business_name":"X","business_phone":"not-a-phone","date":"2026-02-22","time_preferred":"20:00","party_size":2,"name_for_booking":"F"}`,
		`{"business_name":"X","business_phone":"+15551234567","date":"22/02/2026","time_preferred":"20:00","party_size":2,"name_for_booking":"F"}`,
		`{"business_name":"X","business_phone":"+15551234567","date":"2026-02-22","time_preferred":"8pm","party_size":2,"name_for_booking":"F"}`,
	} {
		if w := postJSON(r, "/v1/calls/start", body); w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, w.Code)
		}
	}
}

func TestWebhookFlow_DepositEscalationThenApproval(t *testing.T) {
	r, repo := testRouter(t)

	if w := postJSON(r, "/v1/calls/start", startBody); w.Code != http.StatusCreated {
		t.Fatalf("start failed: %d", w.Code)
	}

	w := postForm(r, "/webhooks/voice?call=req-1", url.Values{"CallStatus": {"in-progress"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Gather") {
		t.Fatalf("expected gather TwiML, got %s", w.Body.String())
	}

	w = postForm(r, "/webhooks/gather?call=req-1", url.Values{"SpeechResult": {"yes but we need a $20 deposit"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	c, _ := repo.Get(ctx, "req-1")
	if c.Status != calls.StatusWaitingUserApproval {
		t.Fatalf("expected WAITING_USER_APPROVAL, got %s", c.Status)
	}

	w = postJSON(r, "/v1/calls/req-1/decision", `{"action":"approve"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	c, _ = repo.Get(ctx, "req-1")
	if c.Status != calls.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", c.Status)
	}
}

func TestWebhookGather_UnknownCallNotFound(t *testing.T) {
	r, _ := testRouter(t)

	w := postForm(r, "/webhooks/gather?call=nope", url.Values{"SpeechResult": {"yes that works"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown call, got %d", w.Code)
	}
}

func TestWebhookStatus_MissingCallParam(t *testing.T) {
	r, _ := testRouter(t)

	w := postForm(r, "/webhooks/status", url.Values{"CallStatus": {"busy"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetCall_NotFound(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/calls/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestApplyDecision_ValidatesAction(t *testing.T) {
	r, _ := testRouter(t)

	if w := postJSON(r, "/v1/calls/start", startBody); w.Code != http.StatusCreated {
		t.Fatalf("start failed")
	}
	w := postJSON(r, "/v1/calls/req-1/decision", `{"action":"shrug"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", w.Code)
	}
}

func TestRecall_UpdatesAndRedials(t *testing.T) {
	r, repo := testRouter(t)

	if w := postJSON(r, "/v1/calls/start", startBody); w.Code != http.StatusCreated {
		t.Fatalf("start failed")
	}
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	_ = repo.UpdateStatus(ctx, "req-1", calls.StatusFailed)

	w := postJSON(r, "/v1/calls/req-1/recall", `{"time_preferred":"19:00","notes":"earlier works too"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	c, _ := repo.Get(ctx, "req-1")
	if c.Status != calls.StatusDialing || c.Reservation.TimePreferred != "19:00" {
		t.Fatalf("expected redial with new time, got %s %s", c.Status, c.Reservation.TimePreferred)
	}
}

func TestHealthzSweepsOpportunistically(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
