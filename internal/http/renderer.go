package httpx

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/novalabs/wa-reporting/internal/domain/model"
	"github.com/novalabs/wa-reporting/internal/jobs"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Renderer renders the embedded HTML pages. Every template is a standalone
// page; there is no layout indirection to keep in sync.
type Renderer struct {
	t      *template.Template
	logger *slog.Logger
}

// NewRenderer parses the embedded templates.
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	return &Renderer{t: t, logger: logger}, nil
}

// MessagePage is the payload of the generic message/error page.
type MessagePage struct {
	Title   string
	Message string
}

// ProcessingPage is the payload of the job-pending page, which refreshes
// itself until the job finishes.
type ProcessingPage struct {
	JobURL string
}

// ReportIndexPage is the payload of the report index.
type ReportIndexPage struct {
	DefaultStartDate string
}

// CheckinReportPage wraps the checkin report for rendering.
type CheckinReportPage struct {
	Report *model.CheckinReport
}

// OrphanReportPage wraps the orphan report for rendering.
type OrphanReportPage struct {
	Report *model.OrphanReport
}

// MakerschoolReportPage wraps the makerschool report for rendering.
type MakerschoolReportPage struct {
	Report *model.MakerschoolReport
}

// RenderIndex renders the report index page.
func (r *Renderer) RenderIndex(w http.ResponseWriter, data ReportIndexPage) {
	r.render(w, http.StatusOK, "index.tmpl", data)
}

// RenderProcessing renders the self-refreshing job-pending page.
func (r *Renderer) RenderProcessing(w http.ResponseWriter, handle jobs.Handle) {
	r.render(w, http.StatusOK, "processing.tmpl", ProcessingPage{JobURL: JobPath(handle)})
}

// RenderMessage renders the generic message page with the given status.
func (r *Renderer) RenderMessage(w http.ResponseWriter, status int, data MessagePage) {
	r.render(w, status, "message.tmpl", data)
}

// RenderCheckinReport renders the missing-instructor-checkins result.
func (r *Renderer) RenderCheckinReport(w http.ResponseWriter, report *model.CheckinReport) {
	r.render(w, http.StatusOK, "checkins.tmpl", CheckinReportPage{Report: report})
}

// RenderOrphanReport renders the Slack-orphans result.
func (r *Renderer) RenderOrphanReport(w http.ResponseWriter, report *model.OrphanReport) {
	r.render(w, http.StatusOK, "orphans.tmpl", OrphanReportPage{Report: report})
}

// RenderMakerschoolReport renders the makerschool registrations result.
func (r *Renderer) RenderMakerschoolReport(w http.ResponseWriter, report *model.MakerschoolReport) {
	r.render(w, http.StatusOK, "makerschool.tmpl", MakerschoolReportPage{Report: report})
}

func (r *Renderer) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, name, data); err != nil {
		r.logger.Error("template execution failed",
			slog.String("template", name),
			slog.Any("error", err),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		// Client disconnects are not actionable here.
		return
	}
}
