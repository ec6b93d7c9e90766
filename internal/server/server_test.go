package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/internal/config"
	"github.com/YuminosukeSato/scigo-workbench/internal/store"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
	"github.com/YuminosukeSato/scigo-workbench/registry"
	"github.com/YuminosukeSato/scigo-workbench/visualizer"
)

var olsPath = []string{"Supervised", "Regression", "Cross Sectional", "Linear", "OLS"}

func testServer(t *testing.T, modify ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Plots.WidthIn, cfg.Plots.HeightIn = 3, 2
	for _, m := range modify {
		m(cfg)
	}
	_, logger := log.NewTestLoggerProvider(log.LevelError)
	st, err := store.Open(filepath.Join(t.TempDir(), "models.db"), store.WithLogger(logger))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(cfg, registry.Default(), st, logger, "0.1.0-test")
}

func do(t *testing.T, s *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, s *Server, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	return do(t, s, method, path, bytes.NewReader(b), "application/json")
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	expectStatus(t, rec, status)
	var resp ErrorResponse
	decode(t, rec, &resp)
	if resp.Type != kind {
		t.Errorf("expected error type %s, got %s (%s)", kind, resp.Type, resp.Error)
	}
}

func sampleCSV() string {
	var b strings.Builder
	b.WriteString("id,group,x1,x2,y\n")
	for i := 0; i < 40; i++ {
		x1 := float64(i) / 4
		x2 := float64((i * 3) % 7)
		y := 0.5 + 1.5*x1 - 2*x2 + 0.05*math.Cos(float64(i))
		fmt.Fprintf(&b, "%d,%s,%.4f,%.1f,%.6f\n", i, []string{"a", "b"}[i%2], x1, x2, y)
	}
	return b.String()
}

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	rec := doJSON(t, s, http.MethodPost, "/sessions", CreateSessionRequest{Path: olsPath})
	expectStatus(t, rec, http.StatusCreated)
	var resp SessionResponse
	decode(t, rec, &resp)
	if resp.Step != visualizer.DataLoading {
		t.Errorf("expected data_loading step, got %s", resp.Step)
	}
	return resp.ID
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodGet, "/health", nil, "")
	expectStatus(t, rec, http.StatusOK)

	var resp HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" || resp.Version != "0.1.0-test" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestRegistry(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodGet, "/registry", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"Cross Sectional"`) {
		t.Errorf("expected the tree, got %s", rec.Body.String())
	}

	rec = do(t, s, http.MethodGet, "/registry/Supervised/Regression", nil, "")
	expectStatus(t, rec, http.StatusOK)
	var e registry.Entry
	decode(t, rec, &e)
	if e.Kind != "branch" || len(e.Children) != 1 || e.Children[0] != "Cross Sectional" {
		t.Errorf("unexpected entry: %+v", e)
	}

	rec = do(t, s, http.MethodGet, "/registry/Supervised/Regression/Cross%20Sectional/Linear/OLS", nil, "")
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &e)
	if e.Kind != "leaf" || e.Name != "OLS" {
		t.Errorf("unexpected entry: %+v", e)
	}

	rec = do(t, s, http.MethodGet, "/registry/Unsupervised", nil, "")
	expectError(t, rec, http.StatusNotFound, "NotFound")
}

func TestCreateSessionErrors(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/sessions", CreateSessionRequest{Path: olsPath[:2]})
	expectError(t, rec, http.StatusBadRequest, "ValidationError")

	rec = doJSON(t, s, http.MethodPost, "/sessions", CreateSessionRequest{Path: []string{"Nope"}})
	expectError(t, rec, http.StatusNotFound, "NotFound")

	rec = do(t, s, http.MethodPost, "/sessions", strings.NewReader("{"), "application/json")
	expectError(t, rec, http.StatusBadRequest, "ValidationError")

	rec = do(t, s, http.MethodGet, "/sessions/unknown", nil, "")
	expectError(t, rec, http.StatusNotFound, "NotFound")
}

func TestWizardFlow(t *testing.T) {
	s := testServer(t)
	id := createSession(t, s)
	base := "/sessions/" + id

	rec := do(t, s, http.MethodPost, base+"/data?name=sample.csv", strings.NewReader(sampleCSV()), "text/csv")
	expectStatus(t, rec, http.StatusOK)
	var sess SessionResponse
	decode(t, rec, &sess)
	if sess.Rows != 40 || len(sess.Columns) != 5 || len(sess.Preview) != 6 {
		t.Fatalf("unexpected upload response: rows=%d columns=%d preview=%d", sess.Rows, len(sess.Columns), len(sess.Preview))
	}
	if sess.Step != visualizer.Inference {
		t.Errorf("expected inference step, got %s", sess.Step)
	}

	// Nothing is fitted yet.
	expectError(t, do(t, s, http.MethodGet, base+"/summary", nil, ""), http.StatusConflict, "NotFittedError")
	expectError(t, do(t, s, http.MethodGet, base+"/plots/qq", nil, ""), http.StatusConflict, "NotFittedError")
	expectError(t, do(t, s, http.MethodGet, base+"/package", nil, ""), http.StatusConflict, "NotFittedError")

	// A failed coercion leaves the data as it was.
	rec = doJSON(t, s, http.MethodPost, base+"/types", map[string]any{"types": map[string]string{"group": "float"}})
	expectError(t, rec, http.StatusBadRequest, "CoercionError")
	rec = doJSON(t, s, http.MethodPost, base+"/types", map[string]any{"types": map[string]string{"group": "categorical"}})
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &sess)
	if sess.Columns[1].DType.String() != "categorical" {
		t.Errorf("expected categorical group, got %s", sess.Columns[1].DType)
	}

	rec = doJSON(t, s, http.MethodPost, base+"/index", IndexRequest{Column: "id"})
	expectStatus(t, rec, http.StatusOK)
	rec = doJSON(t, s, http.MethodPost, base+"/transform", TransformRequest{Column: "x2", Kind: "log1p"})
	expectStatus(t, rec, http.StatusOK)
	rec = doJSON(t, s, http.MethodPost, base+"/transform", TransformRequest{Column: "x2", Kind: "cube"})
	expectError(t, rec, http.StatusBadRequest, "ValidationError")

	rec = doJSON(t, s, http.MethodPost, base+"/fit", FitRequest{IVs: []string{"x1", "x2", "group"}, DVs: []string{"y"}})
	expectStatus(t, rec, http.StatusOK)
	var report visualizer.Report
	decode(t, rec, &report)
	wantIVs := []string{"const", "x1", "x2", "group[T.b]"}
	if strings.Join(report.IVs, ",") != strings.Join(wantIVs, ",") {
		t.Errorf("expected ivs %v, got %v", wantIVs, report.IVs)
	}
	if math.Abs(report.Coefficients["x2"]+2) > 0.05 {
		t.Errorf("expected x2 coefficient near -2, got %v", report.Coefficients["x2"])
	}

	rec = do(t, s, http.MethodGet, base+"/summary", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "OLS Regression Results") {
		t.Error("expected the text summary in the report")
	}

	rec = do(t, s, http.MethodGet, base+"/plots/residuals", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("expected png, got %s", rec.Header().Get("Content-Type"))
	}
	rec = do(t, s, http.MethodGet, base+"/plots/qq?format=svg", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Content-Type") != "image/svg+xml" {
		t.Errorf("expected svg, got %s", rec.Header().Get("Content-Type"))
	}
	rec = do(t, s, http.MethodGet, base+"/plots/scatter?x=x1&y=y", nil, "")
	expectStatus(t, rec, http.StatusOK)
	expectError(t, do(t, s, http.MethodGet, base+"/plots/pie", nil, ""), http.StatusBadRequest, "ValidationError")

	rec = do(t, s, http.MethodGet, base+"/package", nil, "")
	expectStatus(t, rec, http.StatusOK)
	pkg, err := model.ReadPackageBytes(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("package is not readable: %v", err)
	}
	if !strings.HasPrefix(pkg.Metadata.Model, "OLS_") {
		t.Errorf("unexpected artifact name %s", pkg.Metadata.Model)
	}

	rec = doJSON(t, s, http.MethodPost, base+"/save", SaveRequest{Name: "demo"})
	expectStatus(t, rec, http.StatusCreated)

	rec = do(t, s, http.MethodGet, "/models", nil, "")
	expectStatus(t, rec, http.StatusOK)
	var models ModelsResponse
	decode(t, rec, &models)
	if len(models.Models) != 1 || models.Models[0].Name != "demo" || !models.Models[0].Compressed {
		t.Errorf("unexpected models: %+v", models)
	}

	rec = do(t, s, http.MethodGet, "/models/demo", nil, "")
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Content-Type") != "application/zip" {
		t.Errorf("expected zip, got %s", rec.Header().Get("Content-Type"))
	}
	if _, err := model.ReadPackageBytes(rec.Body.Bytes()); err != nil {
		t.Errorf("stored package is not readable: %v", err)
	}

	expectStatus(t, do(t, s, http.MethodDelete, "/models/demo", nil, ""), http.StatusNoContent)
	expectError(t, do(t, s, http.MethodDelete, "/models/demo", nil, ""), http.StatusNotFound, "NotFound")

	expectStatus(t, do(t, s, http.MethodDelete, base, nil, ""), http.StatusNoContent)
	expectError(t, do(t, s, http.MethodGet, base, nil, ""), http.StatusNotFound, "NotFound")
}

func TestMultipartUpload(t *testing.T) {
	s := testServer(t)
	id := createSession(t, s)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "semicolon.csv")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	fw.Write([]byte(strings.ReplaceAll(sampleCSV(), ",", ";")))
	mw.Close()

	rec := do(t, s, http.MethodPost, "/sessions/"+id+"/data?delimiter=%3B", &body, mw.FormDataContentType())
	expectStatus(t, rec, http.StatusOK)
	var sess SessionResponse
	decode(t, rec, &sess)
	if sess.Rows != 40 {
		t.Errorf("expected 40 rows, got %d", sess.Rows)
	}

	rec = do(t, s, http.MethodPost, "/sessions/"+id+"/data", strings.NewReader(""), "text/csv")
	expectError(t, rec, http.StatusBadRequest, "ParseError")

	rec = do(t, s, http.MethodPost, "/sessions/"+id+"/data?delimiter=ab", strings.NewReader("a"), "text/csv")
	expectError(t, rec, http.StatusBadRequest, "ValidationError")

	// An unescaped ';' is not a query separator; the upload is refused
	// instead of falling back to ','.
	rec = do(t, s, http.MethodPost, "/sessions/"+id+"/data?delimiter=;", strings.NewReader("a;b\n1;2\n"), "text/csv")
	if !strings.Contains(rec.Body.String(), "invalid query string") {
		t.Errorf("unexpected error body: %s", rec.Body.String())
	}
	expectError(t, rec, http.StatusBadRequest, "ValidationError")

	// The failed uploads did not replace the data.
	rec = do(t, s, http.MethodGet, "/sessions/"+id+"/data?head=2", nil, "")
	expectStatus(t, rec, http.StatusOK)
	var records [][]string
	decode(t, rec, &records)
	if len(records) != 3 || records[0][0] != "id" {
		t.Errorf("unexpected preview: %v", records)
	}
}

func TestRequestTooLarge(t *testing.T) {
	// Large enough for the session request, too small for the fit request.
	s := testServer(t, func(c *config.Config) { c.Server.MaxUploadBytes = 256 })
	id := createSession(t, s)

	ivs := make([]string, 50)
	for i := range ivs {
		ivs[i] = fmt.Sprintf("column_%d", i)
	}
	rec := doJSON(t, s, http.MethodPost, "/sessions/"+id+"/fit", FitRequest{IVs: ivs, DVs: []string{"y"}})
	expectError(t, rec, http.StatusRequestEntityTooLarge, "RequestTooLarge")
}

func TestSessionExpiry(t *testing.T) {
	s := testServer(t, func(c *config.Config) { c.Server.SessionTTLSec = 60 })
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.sessions.now = func() time.Time { return clock }

	id := createSession(t, s)
	clock = clock.Add(30 * time.Second)
	expectStatus(t, do(t, s, http.MethodGet, "/sessions/"+id, nil, ""), http.StatusOK)

	other := createSession(t, s)
	clock = clock.Add(61 * time.Second)
	expectError(t, do(t, s, http.MethodGet, "/sessions/"+id, nil, ""), http.StatusNotFound, "NotFound")

	if n := s.sessions.Sweep(); n != 1 {
		t.Errorf("expected 1 swept session, got %d", n)
	}
	if s.sessions.Len() != 0 {
		t.Errorf("expected no sessions, got %d (%s)", s.sessions.Len(), other)
	}
}

func TestStoreDisabled(t *testing.T) {
	_, logger := log.NewTestLoggerProvider(log.LevelError)
	s := New(config.Default(), registry.Default(), nil, logger, "test")
	expectError(t, do(t, s, http.MethodGet, "/models", nil, ""), http.StatusServiceUnavailable, "StoreDisabled")
}
