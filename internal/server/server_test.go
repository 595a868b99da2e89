package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
	"github.com/piwi3910/SlabNest/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = model.NestingConfig{SheetWidth: 100, SheetHeight: 100, MaxNoImprovement: 5, Seed: 7}

type testServer struct {
	*Server
	pool *nesting.Pool
	jobs *store.JobStore
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	jobs, err := store.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { jobs.Close() })

	svc := nesting.NewService()
	pool := nesting.NewPool(svc, nesting.PoolConfig{Workers: 2, QueueSize: 2}, jobs)
	t.Cleanup(pool.Close)

	cfg := Config{CORSOrigins: []string{"http://localhost:5173"}}
	return testServer{Server: New(cfg, svc, pool, jobs), pool: pool, jobs: jobs}
}

func (s testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func squares() []model.Part {
	return []model.Part{{ID: "sq", Label: "Square", Outline: model.Rect(10, 10), Quantity: 2}}
}

func TestNest_JSON(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/nest", nesting.Request{Parts: squares(), Config: testConfig})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[model.NestingResult](t, rec)
	assert.NotEmpty(t, result.JobID)
	assert.Len(t, result.NestedParts, 2)
	assert.Equal(t, 1, result.SheetCount)
	assert.InDelta(t, 2.0, result.Utilization, 1e-6)

	job, err := s.jobs.Get(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, job.Status)
}

func TestNest_PartTooLarge(t *testing.T) {
	s := newTestServer(t)
	parts := []model.Part{{ID: "big", Outline: model.Rect(150, 150)}}
	rec := s.do(t, http.MethodPost, "/api/nest", nesting.Request{Parts: parts, Config: testConfig})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "PartTooLarge", body["kind"])
	assert.Equal(t, "big", body["partId"])
	assert.NotEmpty(t, body["message"])
}

func TestNest_InvalidConfig(t *testing.T) {
	s := newTestServer(t)
	cfg := testConfig
	cfg.Spacing = -1
	rec := s.do(t, http.MethodPost, "/api/nest", nesting.Request{Parts: squares(), Config: cfg})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "InvalidConfig", body["kind"])
	assert.Equal(t, "spacing", body["field"])
}

func TestNest_MalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/nest", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNest_Multipart(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files[]", "shelves.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Label,Width,Height,Quantity\nShelf,20,10,3\n"))
	require.NoError(t, err)
	cfg, err := json.Marshal(testConfig)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("config", string(cfg)))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/nest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[model.NestingResult](t, rec)
	assert.Len(t, result.NestedParts, 3)
}

func TestNest_MultipartTooLarge(t *testing.T) {
	s := newTestServer(t)
	s.cfg.MaxUploadBytes = 1 << 10

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files[]", "shelves.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Label,Width,Height,Quantity\n" + strings.Repeat("Shelf,20,10,1\n", 400)))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/nest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Equal(t, "files", decode[map[string]any](t, rec)["field"])
}

func TestNest_MultipartWithoutFiles(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("config", "{}"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/nest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidPart", decode[map[string]any](t, rec)["kind"])
}

func TestNest_PoolClosed(t *testing.T) {
	s := newTestServer(t)
	s.pool.Close()
	rec := s.do(t, http.MethodPost, "/api/nest", nesting.Request{Parts: squares(), Config: testConfig})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Busy", decode[map[string]any](t, rec)["kind"])
}

func TestExport_SVG(t *testing.T) {
	s := newTestServer(t)
	parts := squares()
	rec := s.do(t, http.MethodPost, "/api/nest", nesting.Request{Parts: parts, Config: testConfig})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[model.NestingResult](t, rec)

	rec = s.do(t, http.MethodPost, "/api/export", exportRequest{Format: "svg", Layout: result, Parts: parts})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "nested_layout.svg")
	assert.Contains(t, rec.Body.String(), "<svg")
	assert.Contains(t, rec.Body.String(), `data-part-id="sq"`)
}

func TestExport_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/export", exportRequest{Format: "gcode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "format", decode[map[string]any](t, rec)["field"])

	rec = s.do(t, http.MethodPost, "/api/export", exportRequest{Format: "pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompare_DefaultScenarios(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/compare", compareRequest{Parts: squares(), Config: testConfig})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Results []struct {
			Scenario struct {
				Name string `json:"name"`
			} `json:"scenario"`
			SheetsUsed int `json:"sheetsUsed"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Results)
	for _, r := range body.Results {
		assert.NotEmpty(t, r.Scenario.Name)
	}
}

func TestStatusAndJobs(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/nest", nesting.Request{Parts: squares(), Config: testConfig})
	require.Equal(t, http.StatusOK, rec.Code)
	jobID := decode[model.NestingResult](t, rec).JobID

	rec = s.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[statusResponse](t, rec)
	assert.Equal(t, 4, status.Pool.Capacity)
	assert.EqualValues(t, 1, status.Pool.Completed)
	assert.Equal(t, 1, status.Jobs[store.StatusSucceeded])

	rec = s.do(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobID, decode[map[string]any](t, rec)["id"])

	rec = s.do(t, http.MethodGet, "/api/jobs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/jobs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobs_HistoryDisabled(t *testing.T) {
	svc := nesting.NewService()
	pool := nesting.NewPool(svc, nesting.PoolConfig{Workers: 1}, nil)
	t.Cleanup(pool.Close)
	s := New(Config{}, svc, pool, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/abc", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/nest", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	cases := map[nesting.Kind]int{
		nesting.KindInvalidConfig: http.StatusBadRequest,
		nesting.KindInvalidPart:   http.StatusBadRequest,
		nesting.KindPartTooLarge:  http.StatusUnprocessableEntity,
		nesting.KindBusy:          http.StatusServiceUnavailable,
		nesting.KindCancelled:     http.StatusRequestTimeout,
		nesting.KindUnplaceable:   http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind)
	}
}
