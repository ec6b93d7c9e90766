package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/scigo-workbench/core/model"
	"github.com/YuminosukeSato/scigo-workbench/dataset"
	"github.com/YuminosukeSato/scigo-workbench/internal/store"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
	"github.com/YuminosukeSato/scigo-workbench/preprocessing"
	"github.com/YuminosukeSato/scigo-workbench/registry"
	"github.com/YuminosukeSato/scigo-workbench/visualizer"
)

const previewRows = 5

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type CreateSessionRequest struct {
	Path      []string `json:"path"`
	Intercept *bool    `json:"intercept,omitempty"`
}

type SessionResponse struct {
	ID          string               `json:"id"`
	Path        []string             `json:"path"`
	Model       string               `json:"model"`
	Description string               `json:"description"`
	Step        visualizer.Step      `json:"step"`
	Rows        int                  `json:"rows,omitempty"`
	Columns     []dataset.ColumnInfo `json:"columns,omitempty"`
	Preview     [][]string           `json:"preview,omitempty"`
}

type TypesRequest struct {
	Types       map[string]dataset.DType `json:"types"`
	TimeLayouts []string                 `json:"time_layouts,omitempty"`
}

type IndexRequest struct {
	Column string `json:"column"`
}

type TransformRequest struct {
	Column string `json:"column"`
	Kind   string `json:"kind"`
}

type FitRequest struct {
	IVs []string `json:"ivs"`
	DVs []string `json:"dvs"`
}

type SaveRequest struct {
	Name string `json:"name"`
}

type ModelsResponse struct {
	Models []store.Entry `json:"models"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return errors.WithStack(err)
		}
		return errors.NewValidationError("body", "invalid request body", err.Error())
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry)
}

func (s *Server) handleRegistryPath(w http.ResponseWriter, r *http.Request) {
	var path []string
	for _, p := range strings.Split(r.PathValue("path"), "/") {
		if p != "" {
			path = append(path, p)
		}
	}
	e, err := s.registry.Describe(path...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	leaf, err := s.registry.Resolve(req.Path...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cfg := registry.Config{Intercept: s.config.Model.Intercept}
	if req.Intercept != nil {
		cfg.Intercept = *req.Intercept
	}
	vis, err := leaf.New(cfg,
		visualizer.WithLogger(s.logger),
		visualizer.WithPlotSize(s.config.Plots.WidthIn, s.config.Plots.HeightIn),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sess := s.sessions.Create(req.Path, vis)
	s.logger.Info("session created",
		log.SessionIDKey, sess.id,
		log.RegistryPathKey, strings.Join(req.Path, "/"),
	)
	s.writeJSON(w, http.StatusCreated, s.describe(sess, false))
}

// session looks up the {id} of the request, writing the error response when
// it is missing.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) describe(sess *session, preview bool) SessionResponse {
	m := sess.vis.Model()
	resp := SessionResponse{
		ID:          sess.id,
		Path:        sess.path,
		Model:       m.Name(),
		Description: m.Description(),
		Step:        sess.vis.Step(),
	}
	if f, err := sess.vis.Data(); err == nil {
		resp.Rows = f.Len()
		resp.Columns = f.Describe()
		if preview {
			resp.Preview = f.Records(previewRows)
		}
	}
	return resp
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.describe(sess, false))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// query parses the URL query, reporting malformed pairs instead of dropping them.
func query(r *http.Request) (url.Values, error) {
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, errors.NewValidationError("query", "invalid query string", err.Error())
	}
	return q, nil
}

// readOptions builds CSV options from ?delimiter= and repeated ?na= parameters.
func readOptions(q url.Values) ([]dataset.ReadOption, error) {
	var opts []dataset.ReadOption
	if d := q.Get("delimiter"); d != "" {
		c, err := dataset.ParseDelimiter(d)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dataset.WithDelimiter(c))
	}
	if na, ok := q["na"]; ok {
		opts = append(opts, dataset.WithNATokens(na...))
	}
	return opts, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	q, err := query(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := readOptions(q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var (
		body io.Reader = r.Body
		name           = q.Get("name")
	)
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, hdr, err := r.FormFile("file")
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				s.writeError(w, r, errors.WithStack(err))
				return
			}
			s.writeError(w, r, errors.NewValidationError("file", "multipart upload needs a file field", err.Error()))
			return
		}
		defer file.Close()
		body, name = file, hdr.Filename
	}
	if name == "" {
		name = "upload.csv"
	}

	if err := sess.vis.Load(body, name, opts...); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.describe(sess, true))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	q, err := query(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := sess.vis.Data()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n := previewRows
	if h := q.Get("head"); h != "" {
		if n, err = strconv.Atoi(h); err != nil || n < 0 {
			s.writeError(w, r, errors.NewValidationError("head", "must be a non-negative integer", h))
			return
		}
	}
	s.writeJSON(w, http.StatusOK, f.Records(n))
}

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req TypesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var opts []dataset.CoerceOption
	if len(req.TimeLayouts) > 0 {
		opts = append(opts, dataset.WithTimeLayouts(req.TimeLayouts...))
	}
	if err := sess.vis.Coerce(req.Types, opts...); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.describe(sess, true))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req IndexRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.vis.SetIndex(req.Column); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.describe(sess, true))
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req TransformRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, err := preprocessing.ParseKind(req.Kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.vis.Transform(req.Column, kind); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.describe(sess, true))
}

func (s *Server) handleFit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req FitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.vis.SetVariables(req.IVs, req.DVs); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.vis.Fit(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeReport(w, r, sess)
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, sess *session) {
	report, err := sess.vis.Output()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeReport(w, r, sess)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	kind, err := visualizer.ParsePlotKind(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := query(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format := q.Get("format")
	if format == "" {
		format = s.config.Plots.Format
	}
	opts := []visualizer.PlotOption{visualizer.WithFormat(format)}
	if c := q.Get("column"); c != "" {
		opts = append(opts, visualizer.WithColumn(c))
	}
	if x, y := q.Get("x"), q.Get("y"); x != "" || y != "" {
		opts = append(opts, visualizer.WithXY(x, y))
	}

	var buf bytes.Buffer
	if err := sess.vis.Plot(kind, &buf, opts...); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", visualizer.ContentType(strings.ToLower(format)))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := sess.vis.Package(&buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeZip(w, sess.vis.Model().Name()+".zip", buf.Bytes())
}

func (s *Server) writeZip(w http.ResponseWriter, filename string, b []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

var errNoStore = errors.New("model store is disabled")

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if s.store == nil {
		s.writeError(w, r, errNoStore)
		return
	}
	var req SaveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := sess.vis.Package(&buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	e, err := s.store.Put(r.Context(), req.Name, buf.Bytes())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, errNoStore)
		return
	}
	entries, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ModelsResponse{Models: entries})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, errNoStore)
		return
	}
	name := r.PathValue("name")
	pkg, _, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := model.ReadPackageBytes(pkg); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeZip(w, name+".zip", pkg)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, errNoStore)
		return
	}
	if err := s.store.Delete(r.Context(), r.PathValue("name")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
