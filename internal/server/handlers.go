package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	apperrors "ai-pipeline/internal/common/errors"
	"ai-pipeline/internal/common/sqlguard"
	csvcleaner "ai-pipeline/internal/pipeline/csv-cleaner"
	"ai-pipeline/internal/pipeline/insights"
	"ai-pipeline/internal/pipeline/retrieval"
	strategyplanner "ai-pipeline/internal/pipeline/strategy-planner"
)

var contactEmailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type exploreRequest struct {
	Question string                     `json:"question"`
	Context  []strategyplanner.Exchange `json:"context"`
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// handleExplore runs the full question pipeline: plan, retrieve, synthesize.
func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	var req exploreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewValidationError("request body must be JSON"))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, apperrors.NewValidationError("question is required"))
		return
	}

	ctx := r.Context()

	planCtx, endPlan := s.startSpan(ctx, strategyplanner.StageName)
	strategy, err := s.planner.Execute(planCtx, &strategyplanner.Input{
		Question: req.Question,
		Context:  req.Context,
	})
	endPlan()
	if err != nil {
		s.writeError(w, err)
		return
	}

	retrieveCtx, endRetrieve := s.startSpan(ctx, retrieval.StageName)
	result, err := s.retriever.Execute(retrieveCtx, strategy, req.Question)
	endRetrieve()
	if err != nil {
		s.writeError(w, err)
		return
	}

	synthCtx, endSynth := s.startSpan(ctx, insights.StageName)
	findings := s.synthesizer.Execute(synthCtx, req.Question, result)
	endSynth()

	resp := map[string]interface{}{
		"success":    true,
		"method":     strategy.Method,
		"dataSource": result.Source,
		"data":       result.Rows,
		"count":      result.Count,
		"insights":   findings.Text,
		"reasoning":  strategy.Reasoning,
	}
	if strategy.SQL != "" {
		resp["sql"] = sqlguard.Format(strategy.SQL)
	}
	if strategy.SearchParams != nil {
		resp["searchParams"] = strategy.SearchParams
	}
	if result.UsedFallback {
		resp["usedFallback"] = true
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCleanCSV runs one chunked cleaning job.
func (s *Server) handleCleanCSV(w http.ResponseWriter, r *http.Request) {
	var req csvcleaner.Input
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewValidationError("request body must be JSON"))
		return
	}
	if strings.TrimSpace(req.CSVData) == "" {
		s.writeError(w, apperrors.NewValidationError("csvData is required"))
		return
	}

	cleanCtx, endClean := s.startSpan(r.Context(), csvcleaner.StageName)
	out, err := s.cleaner.Execute(cleanCtx, &req)
	endClean()
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"data":            out.Rows,
		"cleaningStats":   out.Stats,
		"aiInstructions":  out.Instructions,
		"chunksProcessed": out.ChunksProcessed,
	})
}

// handleContact validates and relays a contact message by email.
func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewValidationError("request body must be JSON"))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	switch {
	case req.Name == "" || req.Email == "" || req.Message == "":
		s.writeError(w, apperrors.NewValidationError("name, email and message are required"))
		return
	case !contactEmailRe.MatchString(req.Email):
		s.writeError(w, apperrors.NewValidationError("email address is not valid"))
		return
	}

	if s.mailer == nil || !s.config.Integrations.AWS.SES.Enabled {
		s.writeError(w, apperrors.NewConfigurationError("integrations.aws.ses"))
		return
	}

	ses := s.config.Integrations.AWS.SES
	subject := "New contact message from " + req.Name
	body := "From: " + req.Name + " <" + req.Email + ">\n\n" + req.Message
	if err := s.mailer.SendPlainEmail(r.Context(), ses.FromEmail, ses.ToEmail, subject, body); err != nil {
		s.logger.Error("contact relay failed", map[string]interface{}{"error": err.Error()})
		s.writeError(w, apperrors.NewEmailSendFailedError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": s.config.App.Name,
		"version": s.config.App.Version,
	})
}
