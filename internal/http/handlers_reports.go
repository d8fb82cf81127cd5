package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/novalabs/wa-reporting/internal/domain/model"
	apperrors "github.com/novalabs/wa-reporting/internal/errors"
	"github.com/novalabs/wa-reporting/internal/jobs"
	"github.com/novalabs/wa-reporting/internal/ports"
	"github.com/novalabs/wa-reporting/internal/service"
)

// maxRosterUploadBytes bounds the Slack roster upload.
const maxRosterUploadBytes = 8 << 20

// FetcherFactory builds the session-scoped API fetcher for one session.
type FetcherFactory func(sessionID string) ports.Fetcher

// ReportHandlers provides HTTP handlers for running and polling reports.
// Each submit handler captures the session's fetcher, parks the work in the
// job table, and points the client at the poll endpoint.
type ReportHandlers struct {
	Reports  *service.ReportService
	Jobs     *jobs.Table
	Fetchers FetcherFactory
	Renderer *Renderer
	Logger   *slog.Logger
}

// JobPath returns the browser poll URL for a job handle.
func JobPath(h jobs.Handle) string {
	return fmt.Sprintf("/reports/jobs/%d", uint64(h))
}

// Index renders the report index page.
// GET /reports.
func (h *ReportHandlers) Index(w http.ResponseWriter, _ *http.Request) {
	h.Renderer.RenderIndex(w, ReportIndexPage{
		DefaultStartDate: time.Now().AddDate(0, -1, 0).Format("2006-01-02"),
	})
}

// SubmitMissingCheckins starts the missing-instructor-checkins report.
// POST /reports/missing-checkins (form field start_date, YYYY-MM-DD).
func (h *ReportHandlers) SubmitMissingCheckins(w http.ResponseWriter, r *http.Request) {
	startDate := r.FormValue("start_date")
	if err := validateStartDate(startDate); err != nil {
		h.Renderer.RenderMessage(w, http.StatusBadRequest, MessagePage{
			Title:   "Invalid start date",
			Message: err.Error(),
		})
		return
	}

	handle, ok := h.submitCheckins(w, r, startDate)
	if !ok {
		return
	}
	http.Redirect(w, r, JobPath(handle), http.StatusSeeOther)
}

// SubmitSlackOrphans starts the Slack-orphan report from an uploaded roster.
// POST /reports/slack-orphans (multipart field roster).
func (h *ReportHandlers) SubmitSlackOrphans(w http.ResponseWriter, r *http.Request) {
	roster, err := h.parseRosterUpload(r)
	if err != nil {
		h.Renderer.RenderMessage(w, http.StatusBadRequest, MessagePage{
			Title:   "Invalid roster upload",
			Message: err.Error(),
		})
		return
	}

	handle, ok := h.submitOrphans(w, r, roster)
	if !ok {
		return
	}
	http.Redirect(w, r, JobPath(handle), http.StatusSeeOther)
}

// SubmitMakerschool starts the makerschool registrations report.
// POST /reports/makerschool.
func (h *ReportHandlers) SubmitMakerschool(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.submitMakerschool(w, r)
	if !ok {
		return
	}
	http.Redirect(w, r, JobPath(handle), http.StatusSeeOther)
}

// PollJob polls a report job and renders its outcome.
// GET /reports/jobs/{id}.
//
// A finished job is consumed by the poll that observes it; reloading a result
// page lands on "no such report run".
func (h *ReportHandlers) PollJob(w http.ResponseWriter, r *http.Request) {
	handle, err := parseHandle(r.PathValue("id"))
	if err != nil {
		h.Renderer.RenderMessage(w, http.StatusNotFound, MessagePage{
			Title:   "No such report run",
			Message: "That report link is not valid.",
		})
		return
	}

	res := h.Jobs.Poll(handle)
	switch res.Outcome {
	case jobs.OutcomePending:
		h.Renderer.RenderProcessing(w, handle)

	case jobs.OutcomeCompleted:
		h.renderResult(w, res.Value)

	case jobs.OutcomeFailed:
		var tooMany *service.TooManyEventsError
		if errors.As(res.Err, &tooMany) {
			h.Renderer.RenderMessage(w, http.StatusOK, MessagePage{
				Title:   "Narrow your search",
				Message: tooMany.Error(),
			})
			return
		}
		h.Renderer.RenderMessage(w, http.StatusInternalServerError, MessagePage{
			Title:   "Report failed",
			Message: res.Err.Error(),
		})

	default:
		h.Renderer.RenderMessage(w, http.StatusNotFound, MessagePage{
			Title:   "No such report run",
			Message: "The report was already viewed, expired, or never existed.",
		})
	}
}

func (h *ReportHandlers) renderResult(w http.ResponseWriter, value any) {
	switch report := value.(type) {
	case *model.CheckinReport:
		h.Renderer.RenderCheckinReport(w, report)
	case *model.OrphanReport:
		h.Renderer.RenderOrphanReport(w, report)
	case *model.MakerschoolReport:
		h.Renderer.RenderMakerschoolReport(w, report)
	default:
		h.logger().Error("job produced an unrenderable value", "type", fmt.Sprintf("%T", value))
		h.Renderer.RenderMessage(w, http.StatusInternalServerError, MessagePage{
			Title:   "Report failed",
			Message: "The report produced an unexpected result.",
		})
	}
}

// APISubmitMissingCheckins is the JSON mirror of SubmitMissingCheckins.
// POST /api/reports/missing-checkins.
func (h *ReportHandlers) APISubmitMissingCheckins(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StartDate string `json:"start_date"`
	}
	if !DecodeJSON(w, r, &body) {
		return
	}
	if err := validateStartDate(body.StartDate); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_start_date", Err: err})
		return
	}

	handle, ok := h.submitCheckins(w, r, body.StartDate)
	if !ok {
		return
	}
	writeJobAccepted(w, handle)
}

// APISubmitSlackOrphans is the JSON mirror of SubmitSlackOrphans. The roster
// still arrives as a multipart upload.
// POST /api/reports/slack-orphans.
func (h *ReportHandlers) APISubmitSlackOrphans(w http.ResponseWriter, r *http.Request) {
	roster, err := h.parseRosterUpload(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_roster", Err: err})
		return
	}

	handle, ok := h.submitOrphans(w, r, roster)
	if !ok {
		return
	}
	writeJobAccepted(w, handle)
}

// APISubmitMakerschool is the JSON mirror of SubmitMakerschool.
// POST /api/reports/makerschool.
func (h *ReportHandlers) APISubmitMakerschool(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.submitMakerschool(w, r)
	if !ok {
		return
	}
	writeJobAccepted(w, handle)
}

// APIPollJob is the JSON mirror of PollJob, with the same consume-once
// semantics.
// GET /api/reports/jobs/{id}.
func (h *ReportHandlers) APIPollJob(w http.ResponseWriter, r *http.Request) {
	handle, err := parseHandle(r.PathValue("id"))
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: errors.New("no such report run")})
		return
	}

	res := h.Jobs.Poll(handle)
	switch res.Outcome {
	case jobs.OutcomePending:
		WriteJSON(w, http.StatusOK, map[string]any{"status": "pending"})
	case jobs.OutcomeCompleted:
		WriteJSON(w, http.StatusOK, map[string]any{"status": "completed", "result": res.Value})
	case jobs.OutcomeFailed:
		WriteJSON(w, http.StatusOK, map[string]any{"status": "failed", "message": res.Err.Error()})
	default:
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "job_not_found", Err: errors.New("no such report run")})
	}
}

// sessionFetcher resolves the per-session fetcher, writing the error response
// on failure.
func (h *ReportHandlers) sessionFetcher(w http.ResponseWriter, r *http.Request) (ports.Fetcher, bool) {
	session, ok := GetSessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return nil, false
	}
	return h.Fetchers(session.ID), true
}

func (h *ReportHandlers) submitCheckins(w http.ResponseWriter, r *http.Request, startDate string) (jobs.Handle, bool) {
	fetcher, ok := h.sessionFetcher(w, r)
	if !ok {
		return 0, false
	}
	handle := h.Jobs.Submit(func(ctx context.Context) (any, error) {
		return h.Reports.MissingInstructorCheckins(ctx, fetcher, startDate)
	})
	return handle, true
}

func (h *ReportHandlers) submitOrphans(w http.ResponseWriter, r *http.Request, roster []model.RosterUser) (jobs.Handle, bool) {
	fetcher, ok := h.sessionFetcher(w, r)
	if !ok {
		return 0, false
	}
	handle := h.Jobs.Submit(func(ctx context.Context) (any, error) {
		return h.Reports.SlackOrphans(ctx, fetcher, roster)
	})
	return handle, true
}

func (h *ReportHandlers) submitMakerschool(w http.ResponseWriter, r *http.Request) (jobs.Handle, bool) {
	fetcher, ok := h.sessionFetcher(w, r)
	if !ok {
		return 0, false
	}
	handle := h.Jobs.Submit(func(ctx context.Context) (any, error) {
		return h.Reports.MakerschoolRegistrations(ctx, fetcher)
	})
	return handle, true
}

// parseRosterUpload reads and parses the uploaded roster CSV.
func (h *ReportHandlers) parseRosterUpload(r *http.Request) ([]model.RosterUser, error) {
	if err := r.ParseMultipartForm(maxRosterUploadBytes); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "parse roster upload")
	}
	file, _, err := r.FormFile("roster")
	if err != nil {
		return nil, apperrors.Validation("a roster CSV file is required")
	}
	defer file.Close()

	return service.ParseRoster(file)
}

func (h *ReportHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func validateStartDate(startDate string) error {
	if startDate == "" {
		return apperrors.Validation("start date is required")
	}
	if _, err := time.Parse("2006-01-02", startDate); err != nil {
		return apperrors.Validationf("start date must be YYYY-MM-DD, got %q", startDate)
	}
	return nil
}

func parseHandle(raw string) (jobs.Handle, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid job id")
	}
	return jobs.Handle(id), nil
}

func writeJobAccepted(w http.ResponseWriter, handle jobs.Handle) {
	WriteJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   uint64(handle),
		"poll_url": "/api/reports/jobs/" + strconv.FormatUint(uint64(handle), 10),
	})
}
