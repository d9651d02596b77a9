// Package web serves the browser surface and the JSON API.
//
// The HTML page always answers 200: analysis errors render as a banner
// above the form so the user can correct the input and retry. The JSON API
// carries the error taxonomy in the response body and maps it onto status
// codes (400 for load and unknown-operation errors, 422 for computation
// errors, 500 otherwise).
package web

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"tabstat/internal/analysis"
	"tabstat/internal/server"
	"tabstat/internal/source"
)

// Options tunes the handler.
type Options struct {
	// CORSOrigin is the Access-Control-Allow-Origin value for /api routes;
	// empty disables CORS headers.
	CORSOrigin string

	// Verbose logs one line per request.
	Verbose bool

	// Version is reported by /healthz.
	Version string
}

// Handler serves all HTTP routes.
type Handler struct {
	svc  *server.Service
	opts Options

	// maxBody caps request bodies: the input cap plus slack for the
	// multipart envelope.
	maxBody int64
}

// NewHandler wires the shared service into an HTTP handler.
func NewHandler(svc *server.Service, opts Options) *Handler {
	return &Handler{
		svc:     svc,
		opts:    opts,
		maxBody: svc.Resolver.MaxBytes() + 1<<20,
	}
}

// Routes assembles the mux with CORS and logging applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.index)
	mux.HandleFunc("/analyze", h.analyzeForm)
	mux.HandleFunc("/api/analyze", h.apiAnalyze)
	mux.HandleFunc("/api/operations", h.apiOperations)
	mux.HandleFunc("/healthz", h.healthz)

	var handler http.Handler = mux
	handler = h.cors(handler)
	if h.opts.Verbose {
		handler = h.logged(handler)
	}
	return handler
}

//
// HTML surface
//

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.renderPage(w, &pageData{Ops: analysis.Operations()})
}

// analyzeForm handles the browser form: multipart with an optional file
// plus text inputs. Failures render in-page, never as an error status.
func (h *Handler) analyzeForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	data := &pageData{Ops: analysis.Operations()}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		msg := fmt.Sprintf("bad form: %v", err)
		if maxBytesExceeded(err) {
			msg = "request body exceeds the input size cap"
		}
		data.Fail(server.CodeLoadError, msg)
		h.renderPage(w, data)
		return
	}

	req := source.Request{
		Path:     r.FormValue("path"),
		URL:      r.FormValue("url"),
		Sheet:    r.FormValue("sheet"),
		Format:   r.FormValue("format"),
		Encoding: r.FormValue("encoding"),
	}
	data.Form = formEcho{
		Path: req.Path, URL: req.URL, Sheet: req.Sheet,
		Op: r.FormValue("op"), Column: r.FormValue("column"),
	}

	if f, fh, err := r.FormFile("file"); err == nil {
		defer f.Close()
		buf, err := io.ReadAll(io.LimitReader(f, h.maxBody))
		if err != nil {
			data.Fail(server.CodeLoadError, fmt.Sprintf("read upload: %v", err))
			h.renderPage(w, data)
			return
		}
		req.UploadName = fh.Filename
		req.UploadData = buf
	}

	op := analysis.Request{Op: r.FormValue("op"), Column: r.FormValue("column")}
	res, err := h.svc.Analyze(r.Context(), "web", req, op)
	if err != nil {
		data.Fail(server.ErrorCode(err), err.Error())
		h.renderPage(w, data)
		return
	}

	data.Result = res
	data.ResultText = res.Text()
	h.renderPage(w, data)
}

//
// JSON API
//

// apiRequest is the JSON API request body. Exactly one input field should
// be set; operations on top of it mirror the form.
type apiRequest struct {
	Path  string             `json:"path,omitempty"`
	URL   string             `json:"url,omitempty"`
	Sheet string             `json:"sheet,omitempty"`
	SQL   *source.SQLRequest `json:"sql,omitempty"`

	// UploadName and DataBase64 carry inline file content.
	UploadName string `json:"upload_name,omitempty"`
	DataBase64 string `json:"data_base64,omitempty"`

	Format   string `json:"format,omitempty"`
	Encoding string `json:"encoding,omitempty"`

	Op     string `json:"op"`
	Column string `json:"column,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	OK     bool             `json:"ok"`
	Result *analysis.Result `json:"result,omitempty"`
	Error  *apiError        `json:"error,omitempty"`
}

func (h *Handler) apiAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, server.CodeLoadError, "use POST")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req apiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := fmt.Sprintf("bad request body: %v", err)
		if maxBytesExceeded(err) {
			msg = "request body exceeds the input size cap"
		}
		writeError(w, http.StatusBadRequest, server.CodeLoadError, msg)
		return
	}

	src := source.Request{
		Path:       req.Path,
		URL:        req.URL,
		Sheet:      req.Sheet,
		SQL:        req.SQL,
		UploadName: req.UploadName,
		Format:     req.Format,
		Encoding:   req.Encoding,
	}
	if req.DataBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(req.DataBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, server.CodeLoadError, fmt.Sprintf("bad data_base64: %v", err))
			return
		}
		src.UploadData = data
	}

	res, err := h.svc.Analyze(r.Context(), "api", src, analysis.Request{Op: req.Op, Column: req.Column})
	if err != nil {
		code := server.ErrorCode(err)
		writeError(w, server.HTTPStatus(code), code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Result: res})
}

func (h *Handler) apiOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, server.CodeLoadError, "use GET")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Operations []analysis.OpInfo `json:"operations"`
	}{Operations: analysis.Operations()})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status  string `json:"status"`
		Version string `json:"version,omitempty"`
	}{Status: "ok", Version: h.opts.Version})
}

//
// middleware and helpers
//

func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.opts.CORSOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", h.opts.CORSOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code for the request log line.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("web: %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiResponse{OK: false, Error: &apiError{Code: code, Message: msg}})
}

// maxBytesExceeded reports whether err came from MaxBytesReader.
func maxBytesExceeded(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
