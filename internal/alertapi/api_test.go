package alertapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/uaso/internal/alert"
	"github.com/linnemanlabs/uaso/internal/classify"
	"github.com/linnemanlabs/uaso/internal/triage"
	"github.com/linnemanlabs/uaso/internal/triage/memstore"
)

// fakeService drains the source and reports each alert as processed.
type fakeService struct {
	mu      sync.Mutex
	seen    []*alert.Alert
	records map[string]*triage.Record
	err     error
	getErr  error
}

func newFakeService() *fakeService {
	return &fakeService{records: make(map[string]*triage.Record)}
}

func (f *fakeService) ProcessBatch(_ context.Context, src triage.Source) (*triage.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &triage.BatchResult{Processed: []triage.Summary{}}
	for {
		al, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, alert.ErrMalformed) {
			res.Skipped++
			continue
		}
		if err != nil {
			return res, errors.Join(err)
		}
		f.seen = append(f.seen, al)
		res.Processed = append(res.Processed, triage.Summary{AlertID: al.ID, ActionType: classify.ActionUnknown})
	}
	if f.err != nil {
		res.Failed = 1
	}
	return res, f.err
}

func (f *fakeService) Get(_ context.Context, id string) (*triage.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	r, ok := f.records[id]
	return r, ok, nil
}

func newTestRouter(t *testing.T, svc AlertService) chi.Router {
	t.Helper()
	api := New(nil, svc)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeIngest(t *testing.T, rec *httptest.ResponseRecorder) ingestResponse {
	t.Helper()
	var resp ingestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, newFakeService())
	if api.logger == nil {
		t.Fatal("New(nil, svc) left logger nil; expected Nop logger")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(log.Nop(), nil)
}

// Routing

func TestRegisterRoutes_Methods(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newFakeService())

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"POST alerts", http.MethodPost, "/api/v1/alerts", http.StatusOK},
		{"GET alerts collection", http.MethodGet, "/api/v1/alerts", http.StatusMethodNotAllowed},
		{"PUT alerts", http.MethodPut, "/api/v1/alerts", http.StatusMethodNotAllowed},
		{"DELETE alerts", http.MethodDelete, "/api/v1/alerts", http.StatusMethodNotAllowed},
		{"GET missing record", http.MethodGet, "/api/v1/alerts/ALERT-none", http.StatusNotFound},
		{"POST record", http.MethodPost, "/api/v1/alerts/ALERT-1", http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
		{"old triage path", http.MethodGet, "/api/v1/triage/1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

// Ingestion

func TestIngest_JSONArray(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	r := newTestRouter(t, svc)

	rec := post(r, `[
		{"Severity":"High","Source":"EDR","Message":"Mimikatz on WS-0142"},
		{"Message":"Port scan"}
	]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}

	resp := decodeIngest(t, rec)
	if len(resp.Processed) != 2 {
		t.Fatalf("processed = %d, want 2", len(resp.Processed))
	}
	if svc.seen[0].Severity != "High" || svc.seen[1].Severity != alert.DefaultSeverity {
		t.Errorf("severities = %q, %q", svc.seen[0].Severity, svc.seen[1].Severity)
	}
	if len(resp.Errors) != 0 {
		t.Errorf("errors = %v", resp.Errors)
	}
}

func TestIngest_NDJSONSkipsMalformed(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newFakeService())

	rec := post(r, "{\"Message\":\"a\"}\n\nnot json\n{\"Message\":\"b\"}\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	resp := decodeIngest(t, rec)
	if len(resp.Processed) != 2 || resp.Skipped != 1 {
		t.Errorf("processed = %d skipped = %d, want 2 and 1", len(resp.Processed), resp.Skipped)
	}
}

func TestIngest_InvalidArray(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	r := newTestRouter(t, svc)

	rec := post(r, `[{"Message":"a"},`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(svc.seen) != 0 {
		t.Error("no alert should be processed from an invalid array")
	}
}

func TestIngest_EmptyBody(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, newFakeService())

	rec := post(r, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	resp := decodeIngest(t, rec)
	if resp.Processed == nil || len(resp.Processed) != 0 {
		t.Errorf("processed = %#v, want empty list", resp.Processed)
	}
}

func TestIngest_CollaboratorFailureIsMultiStatus(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.err = errors.Join(&triage.CollaboratorError{AlertID: "ALERT-1", StoreErr: errors.New("table missing")})
	r := newTestRouter(t, svc)

	rec := post(r, `[{"Message":"a"}]`)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMultiStatus)
	}
	resp := decodeIngest(t, rec)
	if resp.Failed != 1 {
		t.Errorf("failed = %d, want 1", resp.Failed)
	}
	if len(resp.Errors) != 1 || !strings.Contains(resp.Errors[0], "alert ALERT-1: store: table missing") {
		t.Errorf("errors = %v", resp.Errors)
	}
}

func TestIngest_OversizedLineIsSkipped(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	r := newTestRouter(t, svc)

	line := fmt.Sprintf(`{"Message":%q}`, strings.Repeat("x", 2<<20))
	rec := post(r, "{\"Message\":\"first\"}\n"+line+"\n{\"Message\":\"third\"}\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	resp := decodeIngest(t, rec)
	if len(resp.Processed) != 2 || resp.Skipped != 1 {
		t.Errorf("processed = %d skipped = %d, want 2 and 1", len(resp.Processed), resp.Skipped)
	}
	if len(svc.seen) != 2 || svc.seen[1].Message != "third" {
		t.Errorf("seen = %d alerts, want first and third", len(svc.seen))
	}
}

// stubService returns a fixed batch result.
type stubService struct {
	res *triage.BatchResult
	err error
}

func (s stubService) ProcessBatch(context.Context, triage.Source) (*triage.BatchResult, error) {
	return s.res, s.err
}

func (s stubService) Get(context.Context, string) (*triage.Record, bool, error) {
	return nil, false, nil
}

func TestIngest_ReadErrorStatus(t *testing.T) {
	t.Parallel()

	readErr := errors.New("read alerts: connection reset")
	tests := []struct {
		name       string
		processed  []triage.Summary
		wantStatus int
	}{
		{"after processed alerts", []triage.Summary{{AlertID: "ALERT-1", ActionType: classify.ActionUnknown}}, http.StatusMultiStatus},
		{"nothing processed", []triage.Summary{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := stubService{res: &triage.BatchResult{Processed: tt.processed}, err: errors.Join(readErr)}
			r := newTestRouter(t, svc)

			rec := post(r, `{"Message":"a"}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			resp := decodeIngest(t, rec)
			if len(resp.Errors) != 1 || resp.Errors[0] != readErr.Error() {
				t.Errorf("errors = %v, want [%q]", resp.Errors, readErr)
			}
		})
	}
}

// Lookup

func TestGetAlert(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	al := alert.New("High", "EDR", "Mimikatz", time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC))
	svc.records[al.ID] = triage.NewRecord(al, classify.Classification{
		Summary:    "Credential dumping.",
		ActionType: classify.ActionHumanRequired,
	}, triage.Bookkeeping{}, time.Date(2026, 2, 14, 9, 0, 2, 0, time.UTC))
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/"+al.ID, http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["alert_id"] != al.ID || got["action_type"] != "HUMAN_REQUIRED" || got["status"] != triage.StatusOpen {
		t.Errorf("record = %v", got)
	}
}

func TestGetAlert_StoreError(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.getErr = errors.New("connection reset")
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/ALERT-1", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("internal error detail leaked to client")
	}
}

// End to end through the real service

type stubInvoker struct{}

func (stubInvoker) Invoke(context.Context, string, []byte) (string, error) {
	return `{"output":{"message":{"role":"assistant","content":[{"text":"{\"summary\":\"Benign scan.\",\"is_real_threat\":false,\"action_type\":\"FALSE_POSITIVE\"}"}]}}}`, nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, string) error { return nil }

func TestIngestThenGet_RealService(t *testing.T) {
	t.Parallel()

	engine := triage.NewEngine(stubInvoker{}, classify.DefaultModelID, log.Nop(), triage.EngineHooks{})
	svc := triage.NewService(memstore.New(), engine, log.Nop(), nil, nopNotifier{}, triage.Bookkeeping{})
	r := newTestRouter(t, svc)

	rec := post(r, `[{"Severity":"Low","Source":"IDS","Message":"Port scan from 192.0.2.44"}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeIngest(t, rec)
	if len(resp.Processed) != 1 || resp.Processed[0].ActionType != classify.ActionFalsePositive {
		t.Fatalf("processed = %+v", resp.Processed)
	}

	id := resp.Processed[0].AlertID
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/"+id, http.NoBody)
	got := httptest.NewRecorder()
	r.ServeHTTP(got, req)
	if got.Code != http.StatusOK {
		t.Fatalf("GET %s = %d", id, got.Code)
	}
	if !strings.Contains(got.Body.String(), "Benign scan.") {
		t.Errorf("record body = %s", got.Body.String())
	}
}

func TestIngest_ConcurrentRequestsAreSerialized(t *testing.T) {
	t.Parallel()

	svc := &countingService{fakeService: newFakeService()}
	r := newTestRouter(t, svc)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			post(r, `[{"Message":"a"}]`)
		}()
	}
	wg.Wait()

	if svc.maxActive > 1 {
		t.Errorf("max concurrent batches = %d, want 1", svc.maxActive)
	}
}

type countingService struct {
	*fakeService
	cmu       sync.Mutex
	active    int
	maxActive int
}

func (c *countingService) ProcessBatch(ctx context.Context, src triage.Source) (*triage.BatchResult, error) {
	c.cmu.Lock()
	c.active++
	c.maxActive = max(c.maxActive, c.active)
	c.cmu.Unlock()

	time.Sleep(time.Millisecond)
	res, err := c.fakeService.ProcessBatch(ctx, src)

	c.cmu.Lock()
	c.active--
	c.cmu.Unlock()
	return res, err
}

// Fuzz

func FuzzAlertIngestion(f *testing.F) {
	r := chi.NewRouter()
	New(nil, newFakeService()).RegisterRoutes(r)

	seeds := []struct {
		body        []byte
		contentType string
	}{
		{nil, ""},
		{[]byte(""), "application/json"},
		{[]byte("{}"), "application/json"},
		{[]byte(`[{"Severity":"High","Message":"x"}]`), "application/json"},
		{[]byte("{\"Message\":\"a\"}\n{bad\n"), "application/x-ndjson"},
		{[]byte("[{invalid json"), "application/json"},
		{[]byte("\x00\x01\x02\xff\xfe"), "application/octet-stream"},
		{[]byte("<xml>not json</xml>"), "text/xml"},
		{[]byte(strings.Repeat("a", 10000)), "text/plain"},
	}
	for _, s := range seeds {
		f.Add(s.body, s.contentType)
	}

	f.Fuzz(func(t *testing.T, body []byte, contentType string) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader(string(body)))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rec := httptest.NewRecorder()

		// Must not panic
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK && rec.Code != http.StatusBadRequest {
			t.Errorf("POST /api/v1/alerts with body len=%d content-type=%q = %d, want 200 or 400",
				len(body), contentType, rec.Code)
		}
	})
}
