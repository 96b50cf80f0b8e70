package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gaurav-prasanna/tutorialpipe/core"
	"github.com/gaurav-prasanna/tutorialpipe/core/fetch"
	"github.com/gaurav-prasanna/tutorialpipe/core/workflow"
	"github.com/gaurav-prasanna/tutorialpipe/logger"
)

// maxMultipartMemory is the part of an upload kept in memory before
// spilling to disk.
const maxMultipartMemory = 8 << 20

type generateRequest struct {
	Source string `json:"source"`
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

type tutorialResponse struct {
	RunID    string      `json:"run_id"`
	Tutorial string      `json:"tutorial"`
	Status   core.Status `json:"status"`
}

type outlineResponse struct {
	RunID    string        `json:"run_id"`
	Outline  *core.Outline `json:"outline"`
	Markdown string        `json:"markdown"`
}

type draftResponse struct {
	RunID  string      `json:"run_id"`
	Draft  string      `json:"draft"`
	Status core.Status `json:"status"`
}

func (s *Server) handleRun(target workflow.Target) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.run(r, target)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, response(target, res))
	}
}

func response(target workflow.Target, res *core.Result) any {
	switch target {
	case workflow.TargetOutline:
		return outlineResponse{RunID: res.RunID, Outline: res.Outline, Markdown: res.Markdown()}
	case workflow.TargetDraft:
		return draftResponse{RunID: res.RunID, Draft: res.Markdown(), Status: res.Status()}
	default:
		return tutorialResponse{RunID: res.RunID, Tutorial: res.Markdown(), Status: res.Status()}
	}
}

// run reads the source from a JSON body or a multipart upload.
func (s *Server) run(r *http.Request, target workflow.Target) (*core.Result, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return s.runUpload(r, target)
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: decoding request body: %w", core.ErrInvalidInput, err)
	}
	if strings.TrimSpace(req.Source) == "" {
		return nil, fmt.Errorf("%w: source is required", core.ErrInvalidInput)
	}
	if !s.opts.AllowLocalSources && !fetch.IsURL(strings.TrimSpace(req.Source)) {
		return nil, fmt.Errorf("%w: source must be an http(s) URL; upload local files as multipart field \"file\"", core.ErrInvalidInput)
	}
	return s.opts.Runner.Run(r.Context(), req.Source, target)
}

func (s *Server) runUpload(r *http.Request, target workflow.Target) (*core.Result, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading multipart form: %w", core.ErrInvalidInput, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: form field \"file\" is required: %w", core.ErrInvalidInput, err)
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	tmp, err := os.CreateTemp("", "tutorialpipe-upload-*"+strings.ToLower(filepath.Ext(name)))
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}
	path := tmp.Name()
	// The run removes the file; this covers runs that never start.
	defer os.Remove(path)

	_, copyErr := io.Copy(tmp, file)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}
	return s.opts.Runner.RunUpload(r.Context(), path, name, target)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := core.HTTPStatusCode(err)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	stage, _ := core.StageOf(err)

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "stage", stage, "status", status, "error", err)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "stage", stage, "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Stage: stage})
}
