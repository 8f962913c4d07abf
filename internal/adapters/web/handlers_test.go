package web_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	webAdapter "phone-resale/internal/adapters/web"
	"phone-resale/internal/app"
	"phone-resale/internal/core"
)

const testSecret = "test-secret"

// stubService answers the few calls these tests make. Anything else panics
// through the nil embedded interface.
type stubService struct {
	app.ApplicationService
	deviceErr error
	shiftErr  error
	entryErr  error
}

func (s *stubService) GetDevice(_ context.Context, id int) (*app.DeviceView, error) {
	if s.deviceErr != nil {
		return nil, s.deviceErr
	}
	serial := "F2LXTEST"
	return &app.DeviceView{ID: id, SerialNumber: &serial, TechnicalStatus: "PACKAGED", CommercialStatus: "IN_STOCK"}, nil
}

func (s *stubService) StartShift(_ context.Context, actorID int) (*app.ShiftView, error) {
	if s.shiftErr != nil {
		return nil, s.shiftErr
	}
	return &app.ShiftView{ID: 1, ActorID: actorID, StartedAt: time.Now()}, nil
}

func (s *stubService) PostManualEntry(context.Context, int, app.ManualEntryRequest) (*app.LedgerEntryView, error) {
	return nil, s.entryErr
}

func newTestHandler(t *testing.T, svc app.ApplicationService) (http.Handler, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return webAdapter.NewHandler(svc, "", testSecret, logger), hook
}

func token(t *testing.T, actorID int, perms ...string) string {
	t.Helper()
	tok, err := webAdapter.IssueToken(testSecret, actorID, perms, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	return tok
}

func do(h http.Handler, method, path, tok, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	RequestID string            `json:"request_id"`
	Fields    map[string]string `json:"fields"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestHandler_HealthIsPublic(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{})
	rec := do(h, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}
}

func TestHandler_Authentication(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{})

	tests := []struct {
		name   string
		tok    string
		status int
	}{
		{name: "missing token", tok: "", status: http.StatusUnauthorized},
		{name: "garbage token", tok: "not-a-jwt", status: http.StatusUnauthorized},
		{name: "valid token", tok: token(t, 3), status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodGet, "/api/me", tt.tok, "")
			if rec.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, rec.Code)
			}
		})
	}

	expired, err := webAdapter.IssueToken(testSecret, 3, nil, -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if rec := do(h, http.MethodGet, "/api/me", expired, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for expired token, got %d", rec.Code)
	}

	foreign, err := webAdapter.IssueToken("other-secret", 3, nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	if rec := do(h, http.MethodGet, "/api/me", foreign, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for token signed with another secret, got %d", rec.Code)
	}
}

func TestHandler_MeReportsTokenClaims(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{})
	rec := do(h, http.MethodGet, "/api/me", token(t, 42, webAdapter.PermSales), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var me struct {
		ActorID     int      `json:"actor_id"`
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.ActorID != 42 || len(me.Permissions) != 1 || me.Permissions[0] != webAdapter.PermSales {
		t.Errorf("Unexpected identity: %+v", me)
	}
}

func TestHandler_PermissionGroups(t *testing.T) {
	svc := &stubService{entryErr: &core.Error{Kind: core.KindNotFound, Message: "cash account 9 not found"}}
	h, _ := newTestHandler(t, svc)
	body := `{"direction":"INCOME","account_id":9,"amount":"100","description":"float"}`

	rec := do(h, http.MethodPost, "/api/ledger/entries", token(t, 3, webAdapter.PermSales), body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 without finance permission, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "FORBIDDEN" {
		t.Errorf("Expected FORBIDDEN, got %s", code)
	}

	rec = do(h, http.MethodPost, "/api/ledger/entries", token(t, 3, webAdapter.PermFinance), body)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected the service error to come through as 404, got %d", rec.Code)
	}
}

func TestHandler_ServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		message  string
		logLines int
	}{
		{
			name:   "not found",
			err:    fmt.Errorf("get device: %w", &core.Error{Kind: core.KindNotFound, Message: "device 7 not found"}),
			status: http.StatusNotFound, code: "NOT_FOUND", message: "device 7 not found",
		},
		{
			name:   "invalid state",
			err:    &core.Error{Kind: core.KindInvalidState, Message: "device 7 is SOLD"},
			status: http.StatusConflict, code: "INVALID_STATE", message: "device 7 is SOLD",
		},
		{
			name:   "insufficient inventory",
			err:    &core.Error{Kind: core.KindInsufficientInventory, Message: "unit 3 has 0"},
			status: http.StatusConflict, code: "INSUFFICIENT_INVENTORY", message: "unit 3 has 0",
		},
		{
			name:   "configuration is hidden and logged",
			err:    &core.Error{Kind: core.KindConfiguration, Message: "category SALE_INCOME missing"},
			status: http.StatusInternalServerError, code: "CONFIGURATION_ERROR", message: "server is misconfigured",
			logLines: 1,
		},
		{
			name:   "unclassified is hidden and logged",
			err:    fmt.Errorf("connection reset"),
			status: http.StatusInternalServerError, code: "INTERNAL_ERROR", message: "internal server error",
			logLines: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, hook := newTestHandler(t, &stubService{deviceErr: tt.err})
			rec := do(h, http.MethodGet, "/api/devices/7", token(t, 3), "")
			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, rec.Code)
			}
			body := decodeError(t, rec)
			if body.Code != tt.code || body.Error != tt.message {
				t.Errorf("Expected %s %q, got %s %q", tt.code, tt.message, body.Code, body.Error)
			}
			if body.RequestID == "" {
				t.Error("Expected request id in error body")
			}
			errorLogs := 0
			for _, e := range hook.AllEntries() {
				if e.Level == logrus.ErrorLevel {
					errorLogs++
				}
			}
			if errorLogs != tt.logLines {
				t.Errorf("Expected %d error log lines, got %d", tt.logLines, errorLogs)
			}
		})
	}
}

func TestHandler_ValidationFields(t *testing.T) {
	type payload struct {
		Amount string `validate:"required"`
	}
	verr := validator.New().Struct(payload{})
	svc := &stubService{deviceErr: &core.Error{Kind: core.KindValidation, Message: "invalid request: Amount (required)", Err: verr}}
	h, _ := newTestHandler(t, svc)

	rec := do(h, http.MethodGet, "/api/devices/7", token(t, 3), "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Fields["Amount"] != "required" {
		t.Errorf("Expected field error for Amount, got %v", body.Fields)
	}
}

func TestHandler_BadInput(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{})
	tok := token(t, 3, webAdapter.PermFinance)

	if rec := do(h, http.MethodGet, "/api/devices/abc", tok, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric id, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/ledger/entries", tok, "{"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed JSON, got %d", rec.Code)
	}
	big := `{"description":"` + strings.Repeat("x", 2<<20) + `"}`
	if rec := do(h, http.MethodPost, "/api/ledger/entries", tok, big); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413 for oversized body, got %d", rec.Code)
	}
}

func TestHandler_StartShiftCreated(t *testing.T) {
	h, _ := newTestHandler(t, &stubService{})
	rec := do(h, http.MethodPost, "/api/shifts/start", token(t, 5), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	h, _ = newTestHandler(t, &stubService{shiftErr: &core.Error{Kind: core.KindInvalidState, Message: "actor 5 already has an open shift"}})
	rec = do(h, http.MethodPost, "/api/shifts/start", token(t, 5), "")
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", rec.Code)
	}
}
