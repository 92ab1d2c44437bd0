package http

import (
	"errors"
	"net/http"

	"budgetcards/internal/ai"
	"budgetcards/internal/core"
	applog "budgetcards/internal/log"
)

type classifyRequest struct {
	Text string `json:"text"`
}

// relayRequest is the chat payload posted by clients. The model is always
// the server's; a client "model" field is ignored. Temperature falls back to
// the relay default when omitted.
type relayRequest struct {
	Messages    []ai.Message `json:"messages"`
	Temperature *float64     `json:"temperature"`
}

// handleClassify labels free text. It always answers with a label.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	label := core.LabelOther
	if s.deps.Classifier != nil {
		label = s.deps.Classifier.Classify(r.Context(), sanitizeInput(req.Text))
	}
	NewJSONResponse().JSON(map[string]string{"label": label}).Write(w)
}

// handleAnalyze relays a chat completion upstream so the credential never
// leaves the server.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	logger := s.requestLogger(r).WithComponent(applog.ComponentAI)

	var req relayRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if len(req.Messages) == 0 {
		BadRequestError("messages are required").Write(w)
		return
	}
	if s.deps.Relay == nil {
		logger.ErrorContext(r.Context(), "AI relay not configured")
		InternalServerError().Write(w)
		return
	}

	chat := s.deps.Relay.NewRequest(req.Messages...)
	if req.Temperature != nil {
		chat.Temperature = *req.Temperature
	}

	status, body, err := s.deps.Relay.Do(r.Context(), chat)
	if err != nil {
		errType := applog.ErrorTypeNetwork
		if errors.Is(err, ai.ErrMissingAPIKey) {
			errType = applog.ErrorTypeConfiguration
		}
		logger.ErrorContext(r.Context(), "AI relay failed",
			applog.FieldError, err,
			"error_type", errType)
		InternalServerError().Write(w)
		return
	}
	if status < 200 || status > 299 {
		logger.WarnContext(r.Context(), "AI upstream returned an error",
			applog.FieldStatusCode, status,
			"error_type", applog.ErrorTypeUpstream)
		UpstreamError(status, body).Write(w)
		return
	}
	NewJSONResponse().Status(status).Raw(body).Write(w)
}
