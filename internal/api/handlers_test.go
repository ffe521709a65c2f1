package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("KPI_FAMILIES_FILE", "")
	t.Setenv("RATE_RPS", "0")
	s, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func asAdmin(req *http.Request) *http.Request {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "admin")
	return req
}

type calcResponse struct {
	Result struct {
		TTDSeconds       int64  `json:"ttd_seconds"`
		TTMSeconds       *int64 `json:"ttm_seconds"`
		StopsSLASeconds  int64  `json:"stops_sla_seconds"`
		SLARealSeconds   *int64 `json:"sla_real_seconds"`
		SLAToDateSeconds *int64 `json:"sla_to_date_seconds"`
	} `json:"result"`
	Formatted map[string]string `json:"formatted"`
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func createEntity(t *testing.T, s *Server) string {
	t.Helper()
	body := []byte(`{"tenantId":"t_test","entityType":"Provisión","start":"02/01/2024 - 09:00"}`)
	rr := httptest.NewRecorder()
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/v1/entities", bytes.NewReader(body)))
	s.EntitiesHandler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create entity: got %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil || out.ID == "" {
		t.Fatalf("decode create response: %v, body %s", err, rr.Body.String())
	}
	return out.ID
}

func TestEntityLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := createEntity(t, s)

	// GET the entity back
	rr := httptest.NewRecorder()
	s.EntityByIDHandler(rr, asAdmin(httptest.NewRequest(http.MethodGet, "/v1/entities/"+id, nil)))
	if rr.Code != 200 {
		t.Fatalf("get entity: %d", rr.Code)
	}

	// Add a one-hour Global stop
	stopBody := []byte(`{"stops":[{"type":"Global","start":"02/01/2024 - 12:00","end":"02/01/2024 - 13:00"}]}`)
	rr = httptest.NewRecorder()
	s.EntityByIDHandler(rr, asAdmin(httptest.NewRequest(http.MethodPost, "/v1/entities/"+id+"/stops", bytes.NewReader(stopBody))))
	if rr.Code != 200 {
		t.Fatalf("add stops: %d: %s", rr.Code, rr.Body.String())
	}

	// Finalize and check the computed KPIs
	finBody := []byte(`{"end":"03/01/2024 - 18:00","now":"04/01/2024 - 10:00"}`)
	rr = httptest.NewRecorder()
	s.EntityByIDHandler(rr, asAdmin(httptest.NewRequest(http.MethodPost, "/v1/entities/"+id+"/finalize", bytes.NewReader(finBody))))
	if rr.Code != 200 {
		t.Fatalf("finalize: %d: %s", rr.Code, rr.Body.String())
	}
	var res calcResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode finalize response: %v", err)
	}
	if res.Result.TTMSeconds == nil || *res.Result.TTMSeconds != 118800 {
		t.Errorf("ttm = %v, want 118800", res.Result.TTMSeconds)
	}
	if res.Result.SLARealSeconds == nil || *res.Result.SLARealSeconds != 115200 {
		t.Errorf("sla_real = %v, want 115200", res.Result.SLARealSeconds)
	}
	if res.Formatted["sla_real"] != "01 d 08 h 00 m" {
		t.Errorf("formatted sla_real = %q, want %q", res.Formatted["sla_real"], "01 d 08 h 00 m")
	}

	// Finalizing twice conflicts
	rr = httptest.NewRecorder()
	s.EntityByIDHandler(rr, asAdmin(httptest.NewRequest(http.MethodPost, "/v1/entities/"+id+"/finalize", bytes.NewReader(finBody))))
	if rr.Code != http.StatusConflict {
		t.Fatalf("second finalize: %d, want 409", rr.Code)
	}
}

func TestEntityKPIsToDate(t *testing.T) {
	s := newTestServer(t)
	id := createEntity(t, s)

	stopBody := []byte(`{"stops":[{"type":"Global","start":"02/01/2024 - 12:00","end":"02/01/2024 - 13:00"}]}`)
	rr := httptest.NewRecorder()
	s.EntityByIDHandler(rr, asAdmin(httptest.NewRequest(http.MethodPost, "/v1/entities/"+id+"/stops", bytes.NewReader(stopBody))))
	if rr.Code != 200 {
		t.Fatalf("add stops: %d", rr.Code)
	}

	q := url.QueryEscape("04/01/2024 - 10:00")
	rr = httptest.NewRecorder()
	s.EntityByIDHandler(rr, asAdmin(httptest.NewRequest(http.MethodGet, "/v1/entities/"+id+"/kpis?now="+q, nil)))
	if rr.Code != 200 {
		t.Fatalf("kpis: %d: %s", rr.Code, rr.Body.String())
	}
	var res calcResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode kpis: %v", err)
	}
	if res.Result.TTDSeconds != 176400 {
		t.Errorf("ttd = %d, want 176400", res.Result.TTDSeconds)
	}
	if res.Result.TTMSeconds != nil {
		t.Errorf("ttm = %v, want nil while open", res.Result.TTMSeconds)
	}
	if res.Result.SLAToDateSeconds == nil || *res.Result.SLAToDateSeconds != 172800 {
		t.Errorf("sla_to_date = %v, want 172800", res.Result.SLAToDateSeconds)
	}
	if res.Formatted["sla_to_date"] != "02 d 00 h 00 m" {
		t.Errorf("formatted sla_to_date = %q", res.Formatted["sla_to_date"])
	}
}

func TestCreateEntityValidation(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		name string
		body string
	}{
		{"missing entityType", `{"tenantId":"t_test","start":"02/01/2024 - 09:00"}`},
		{"bad timestamp", `{"tenantId":"t_test","entityType":"Tarea","start":"2024-01-02"}`},
		{"unknown stop type", `{"tenantId":"t_test","entityType":"Tarea","start":"02/01/2024 - 09:00","stops":[{"type":"Pausa","start":"02/01/2024 - 12:00","end":"02/01/2024 - 13:00"}]}`},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		req := asAdmin(httptest.NewRequest(http.MethodPost, "/v1/entities", bytes.NewReader([]byte(c.body))))
		s.EntitiesHandler(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", c.name, rr.Code)
		}
	}
}

func TestEntitiesList(t *testing.T) {
	s := newTestServer(t)
	createEntity(t, s)
	createEntity(t, s)

	rr := httptest.NewRecorder()
	s.EntitiesHandler(rr, asAdmin(httptest.NewRequest(http.MethodGet, "/v1/entities?limit=1", nil)))
	if rr.Code != 200 {
		t.Fatalf("list: %d", rr.Code)
	}
	var out struct {
		Items      []map[string]any `json:"items"`
		NextCursor string           `json:"nextCursor"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(out.Items) != 1 || out.NextCursor == "" {
		t.Fatalf("items=%d nextCursor=%q, want paged result", len(out.Items), out.NextCursor)
	}
}

func TestCalculateHandler(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{
	  "entity_type": "Provisión",
	  "is_finalized": true,
	  "start": "02/01/2024 - 09:00",
	  "end": "03/01/2024 - 18:00",
	  "now": "04/01/2024 - 10:00",
	  "stops": [{"type":"Global","start":"02/01/2024 - 12:00","end":"02/01/2024 - 13:00"}]
	}`)
	rr := httptest.NewRecorder()
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/v1/calculate", bytes.NewReader(body)))
	s.CalculateHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("calculate: %d: %s", rr.Code, rr.Body.String())
	}
	var res calcResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Result.TTDSeconds != 176400 || res.Result.StopsSLASeconds != 3600 {
		t.Errorf("ttd=%d stops_sla=%d", res.Result.TTDSeconds, res.Result.StopsSLASeconds)
	}

	// Malformed document
	rr = httptest.NewRecorder()
	req = asAdmin(httptest.NewRequest(http.MethodPost, "/v1/calculate", bytes.NewReader([]byte(`{"entity_type":""}`))))
	s.CalculateHandler(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed calculate: %d, want 400", rr.Code)
	}
}

func TestFinalizeEnqueuesWebhook(t *testing.T) {
	s := newTestServer(t)

	subBody := []byte(`{"tenantId":"t_test","url":"https://example.invalid/webhook","events":["entity.finalized"],"secret":"shh"}`)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, asAdmin(httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(subBody))))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sub: %d: %s", rr.Code, rr.Body.String())
	}

	id := createEntity(t, s)
	finBody := []byte(`{"end":"03/01/2024 - 18:00","now":"04/01/2024 - 10:00"}`)
	rr = httptest.NewRecorder()
	s.EntityByIDHandler(rr, asAdmin(httptest.NewRequest(http.MethodPost, "/v1/entities/"+id+"/finalize", bytes.NewReader(finBody))))
	if rr.Code != 200 {
		t.Fatalf("finalize: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.WebhookDeliveriesHandler(rr, asAdmin(httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries?limit=5", nil)))
	if rr.Code != 200 {
		t.Fatalf("deliveries: %d", rr.Code)
	}
	var dres struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &dres); err != nil {
		t.Fatalf("decode deliveries: %v", err)
	}
	if len(dres.Items) == 0 {
		t.Fatal("expected at least one delivery")
	}
}

func TestSubscriptionsRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	subBody := []byte(`{"url":"https://example.invalid/webhook","events":["entity.finalized"]}`)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(subBody))
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "viewer")
	s.SubscriptionsHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer create sub: %d, want 403", rr.Code)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
	hdr  http.Header
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int)           { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *sseRecorder) Flush()                      {}

func TestKPIStreamSSE(t *testing.T) {
	s := newTestServer(t)
	id := createEntity(t, s)

	sseReq := httptest.NewRequest(http.MethodGet, "/v1/entities/"+id+"/kpis/stream", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sseReq = sseReq.WithContext(ctx)
	sseReq.Header.Set("X-Tenant-Id", "t_test")
	sseReq.Header.Set("X-Role", "admin")

	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.EntityByIDHandler(rec, sseReq)
		close(done)
	}()

	// Give the handler time to subscribe before publishing
	time.Sleep(50 * time.Millisecond)
	s.Broker.Publish(id, KPIEvent{Type: "entity.finalized", Data: map[string]any{"entityId": id}})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if bytes.Contains(rec.buf.Bytes(), []byte("event: entity.finalized")) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !bytes.Contains(rec.buf.Bytes(), []byte("event: entity.finalized")) {
		t.Fatalf("SSE did not contain expected event. Body: %s", rec.buf.String())
	}
	cancel()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("handler did not exit after cancel")
	}
}
