package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/brickellbay/paysync/internal/ingest"
	"github.com/brickellbay/paysync/internal/service"
)

const maxUploadBytes = 16 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts the statement either as a multipart "file" part or as
// a raw text body.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	s.tracer.Step(requestID(r), "request.body", map[string]any{
		"content_type":   r.Header.Get("Content-Type"),
		"content_length": r.ContentLength,
	})

	var reader io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, _, err := r.FormFile("file")
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "missing file part")
			return
		}
		defer file.Close()
		reader = file
	}

	res, err := s.svc.Upload(r.Context(), requestID(r), reader)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFetchDBPayments(w http.ResponseWriter, r *http.Request) {
	var req service.FetchRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.FetchDBPayments(r.Context(), requestID(r), req)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMatchSelection(w http.ResponseWriter, r *http.Request) {
	var req service.MatchSelectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.MatchSelection(r.Context(), requestID(r), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEmptySelection) {
			status = http.StatusBadRequest
		}
		s.writeError(w, r, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFetchMerged(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FilePayments []ingest.BankRow `json:"file_payments"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	payments, err := s.svc.FetchMerged(r.Context(), requestID(r), req.FilePayments)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"db_payments": payments})
}

// handleUpdatePayments takes the commit batch as a bare JSON array, or
// wrapped in {"payments": [...]}.
func (s *Server) handleUpdatePayments(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	body = bytes.TrimSpace(body)

	var instructions []service.CommitInstruction
	if len(body) > 0 && body[0] == '[' {
		err = json.Unmarshal(body, &instructions)
	} else {
		var req struct {
			Payments []service.CommitInstruction `json:"payments"`
		}
		err = json.Unmarshal(body, &req)
		instructions = req.Payments
	}
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(instructions) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "no payments to commit")
		return
	}
	s.tracer.Step(requestID(r), "request.body", map[string]any{"body": instructions})
	res := s.svc.UpdatePayments(r.Context(), requestID(r), instructions)
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.maint.Reset(r.Context()); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// decode parses the JSON body into v and traces the decoded payload. The
// recorder clips oversized values, so tracing full bodies is safe.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	s.tracer.Step(requestID(r), "request.body", map[string]any{"body": v})
	return true
}
