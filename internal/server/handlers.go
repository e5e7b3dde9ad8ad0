package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmmcquay/katago-web/internal/gtp"
	"github.com/dmmcquay/katago-web/internal/katago"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusResponse answers GET /api/katago/status.
type StatusResponse struct {
	Status          string       `json:"status"`
	Engine          string       `json:"engine"`
	State           katago.State `json:"state"`
	Version         string       `json:"version,omitempty"`
	AnalysisCommand string       `json:"analysisCommand,omitempty"`
	LastError       string       `json:"lastError,omitempty"`
	QueueDepth      int          `json:"queueDepth"`
}

// LifecycleResponse answers the start and stop endpoints.
type LifecycleResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PositionEvaluation answers POST /api/katago/analyze-position.
type PositionEvaluation struct {
	RootInfo     katago.RootInfo   `json:"rootInfo"`
	MoveInfos    []katago.MoveInfo `json:"moveInfos"`
	AnalysisType string            `json:"analysis_type"`
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	resp := StatusResponse{
		Status:          "unavailable",
		Engine:          "KataGo",
		State:           st.State,
		Version:         st.EngineVersion,
		AnalysisCommand: st.AnalysisCommand,
		LastError:       st.LastError,
		QueueDepth:      st.QueueDepth,
	}
	if st.State == katago.StateReady {
		resp.Status = "ok"
	}
	if st.EngineName != "" {
		resp.Engine = st.EngineName
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	result, ok := s.analyze(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAnalyzePosition(w http.ResponseWriter, r *http.Request) {
	result, ok := s.analyze(w, r)
	if !ok {
		return
	}
	if !result.EvaluationAvailable || result.Root == nil {
		s.writeError(w, r, katago.ErrEvaluationUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, PositionEvaluation{
		RootInfo:     *result.Root,
		MoveInfos:    result.MoveInfos,
		AnalysisType: "position_evaluation",
	})
}

func (s *HTTPServer) analyze(w http.ResponseWriter, r *http.Request) (*katago.AnalysisResult, bool) {
	var req katago.AnalysisRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return nil, false
	}

	result, err := s.engine.Analyze(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return result, true
}

func (s *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.Context()); err != nil {
		s.logger.WithContext(r.Context()).Warn("Manual engine start failed", "error", err)
		writeJSON(w, http.StatusOK, LifecycleResponse{Status: "failed", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, LifecycleResponse{Status: "started"})
}

func (s *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(); err != nil {
		s.logger.WithContext(r.Context()).Warn("Engine stop reported an error", "error", err)
	}
	writeJSON(w, http.StatusOK, LifecycleResponse{Status: "stopped"})
}

func (s *HTTPServer) handleUnknownAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown endpoint " + r.Method + " " + r.URL.Path, Code: "not_found"})
}

// decode reads a JSON body. An empty body is an empty request.
func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := r.Body
	if s.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", katago.ErrInvalidRequest, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", katago.ErrInvalidRequest, err)
	}
	return nil
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	logger := s.logger.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "path", r.URL.Path, "code", code, "error", err)
	} else {
		logger.Info("Request rejected", "path", r.URL.Path, "code", code, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

// errorStatus maps engine errors onto HTTP statuses and stable codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, katago.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, katago.ErrIllegalMove):
		return http.StatusBadRequest, "illegal_move"
	case errors.Is(err, katago.ErrQueueFull), errors.Is(err, katago.ErrQueueClosed):
		return http.StatusServiceUnavailable, "queue_full"
	case errors.Is(err, katago.ErrEvaluationUnavailable):
		return http.StatusServiceUnavailable, "evaluation_unavailable"
	case errors.Is(err, katago.ErrEngineUnavailable), errors.Is(err, gtp.ErrProcessNotReady):
		return http.StatusServiceUnavailable, "engine_unavailable"
	case errors.Is(err, gtp.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case gtp.IsIOError(err):
		return http.StatusServiceUnavailable, "engine_unavailable"
	case errors.Is(err, katago.ErrSetupFailed):
		return http.StatusUnprocessableEntity, "setup_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
