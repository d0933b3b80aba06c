package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/TobiSchelling/autoblog/internal/database"
	"github.com/TobiSchelling/autoblog/internal/frontmatter"
	"github.com/TobiSchelling/autoblog/internal/pipeline"
)

const maxRequestBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	Count      int      `json:"count" validate:"omitempty,min=1,max=10"`
	Prompt     string   `json:"prompt" validate:"required_unless=FromTopics true,max=2000"`
	Tags       []string `json:"tags" validate:"omitempty,max=10,dive,required,max=50"`
	Date       string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	SourceURL  string   `json:"source_url" validate:"omitempty,url"`
	FromTopics bool     `json:"from_topics"`
}

type roundResponse struct {
	Index       int      `json:"index"`
	RoundID     int64    `json:"round_id,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Title       string   `json:"title,omitempty"`
	Name        string   `json:"name,omitempty"`
	ArticlePath string   `json:"article_path,omitempty"`
	ImagePath   string   `json:"image_path,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	BaseRef     string   `json:"base_ref,omitempty"`
	Ref         string   `json:"ref,omitempty"`
	Error       string   `json:"error,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
}

type reportResponse struct {
	BatchID   string          `json:"batch_id"`
	Published int             `json:"published"`
	Error     string          `json:"error,omitempty"`
	Rounds    []roundResponse `json:"rounds"`
}

type storedRound struct {
	ID          int64    `json:"id"`
	BatchID     string   `json:"batch_id"`
	Index       int      `json:"index"`
	Status      string   `json:"status"`
	Title       string   `json:"title,omitempty"`
	Date        string   `json:"date,omitempty"`
	Tags        []string `json:"tags"`
	ArticlePath string   `json:"article_path,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	Ref         string   `json:"ref,omitempty"`
	Error       string   `json:"error,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.opts.Generator == nil {
		writeError(w, http.StatusServiceUnavailable, "generation is not enabled on this server")
		return
	}

	var req GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, describeValidation(err))
		return
	}

	job := pipeline.Job{
		Count:      req.Count,
		Prompt:     strings.TrimSpace(req.Prompt),
		Tags:       req.Tags,
		Date:       req.Date,
		SourceURL:  req.SourceURL,
		FromTopics: req.FromTopics,
	}
	if !job.FromTopics && len(job.Tags) == 0 {
		job.Tags = append([]string{}, s.opts.DefaultTags...)
	}

	s.log.Info("generate requested",
		zap.Int("count", job.Count),
		zap.Bool("from_topics", job.FromTopics),
		zap.String("remote", r.RemoteAddr))
	report := s.opts.Generator.Run(r.Context(), job)

	status := http.StatusOK
	switch {
	case report.Err == nil:
	case errors.Is(report.Err, frontmatter.ErrInvalidInput):
		status = http.StatusBadRequest
	default:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, toReportResponse(report))
}

func (s *Server) handleListRounds(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rounds, err := s.db.ListRounds(limit)
	if err != nil {
		s.log.Error("listing rounds", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "listing rounds failed")
		return
	}
	out := make([]storedRound, 0, len(rounds))
	for _, rd := range rounds {
		out = append(out, toStoredRound(rd))
	}
	writeJSON(w, http.StatusOK, out)
}

func toReportResponse(report *pipeline.Report) reportResponse {
	resp := reportResponse{
		BatchID:   report.BatchID,
		Published: report.Published(),
		Rounds:    make([]roundResponse, 0, len(report.Rounds)),
	}
	if report.Err != nil {
		resp.Error = report.Err.Error()
	}
	for _, rr := range report.Rounds {
		out := roundResponse{
			Index:      rr.Index,
			RoundID:    rr.RoundID,
			Prompt:     rr.Prompt,
			Tags:       rr.Tags,
			BaseRef:    rr.BaseRef,
			Ref:        rr.Ref,
			DurationMS: rr.Duration.Milliseconds(),
		}
		if a := rr.Article; a != nil {
			out.Title = a.Title
			out.Name = a.Name
			out.ArticlePath = a.ArticlePath
			out.ImagePath = a.ImagePath
			out.CoverURL = a.CoverURL
		}
		if rr.Err != nil {
			out.Error = rr.Err.Error()
		}
		resp.Rounds = append(resp.Rounds, out)
	}
	return resp
}

func toStoredRound(r database.Round) storedRound {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return storedRound{
		ID:          r.ID,
		BatchID:     r.BatchID,
		Index:       r.Index,
		Status:      r.Status,
		Title:       r.Title,
		Date:        r.Date,
		Tags:        tags,
		ArticlePath: r.ArticlePath,
		CoverURL:    r.CoverURL,
		Ref:         r.Ref,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg += " (" + fe.Param() + ")"
		}
		parts = append(parts, msg)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
