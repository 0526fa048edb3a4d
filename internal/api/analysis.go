package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sevenedu/counselor/internal/domain"
	"github.com/sevenedu/counselor/internal/llm"
)

const (
	msgIncompleteProfile = "Incomplete user profile - name, grade, and GPA are required"
	msgAnalysisFailed    = "Failed to generate student analysis"
)

var analysisOptions = llm.Options{
	Temperature: 0.7,
	MaxTokens:   2000,
	JSON:        true,
}

// AnalysisRequest is the inbound body of the analysis route.
type AnalysisRequest struct {
	UserProfile *domain.UserProfile `json:"userProfile"`
}

// AnalysisResponse wraps the generated report.
type AnalysisResponse struct {
	Analysis domain.Analysis `json:"analysis"`
}

// HandleAnalysis handles POST /api/student-analysis.
func (h *Handler) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return
		}
		Error(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if req.UserProfile == nil {
		Error(w, http.StatusBadRequest, msgProfileRequired)
		return
	}
	if len(req.UserProfile.MissingRequiredFields()) > 0 {
		slog.Warn("Incomplete user profile for analysis", "missing", req.UserProfile.MissingRequiredFields())
		Error(w, http.StatusBadRequest, msgIncompleteProfile)
		return
	}

	slog.Info("Generating student analysis", "name", req.UserProfile.Name)
	analysis, err := h.generateAnalysis(r, req.UserProfile)
	if err != nil {
		slog.Error("Student analysis failed", "error", err)
		Error(w, http.StatusInternalServerError, msgAnalysisFailed)
		return
	}
	JSON(w, http.StatusOK, AnalysisResponse{Analysis: analysis.WithDefaults(req.UserProfile)})
}

func (h *Handler) generateAnalysis(r *http.Request, p *domain.UserProfile) (domain.Analysis, error) {
	reply, err := h.openai.Complete(r.Context(), h.builder.Analysis(p), analysisOptions)
	if err != nil {
		return domain.Analysis{}, err
	}

	body := stripCodeFence(reply)
	if body == "" {
		return domain.Analysis{}, errors.New("empty analysis response")
	}
	var a domain.Analysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return domain.Analysis{}, fmt.Errorf("parse analysis: %w", err)
	}
	return a, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence, which some
// models emit even in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
