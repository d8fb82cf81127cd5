package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/novalabs/wa-reporting/internal/domain/model"
	"github.com/novalabs/wa-reporting/internal/ports"
	"github.com/novalabs/wa-reporting/internal/util"
)

// maxCheckinEvents caps how many events the checkin report will expand.
// Beyond this, the per-event registration fetches get expensive and the
// member is asked to narrow the date window instead.
const maxCheckinEvents = 250

// cancelWords mark events that were cancelled in name only. The roster of
// misspellings is historical; people type what they type.
var cancelWords = []string{"cancelled", "canceled", "cancellled", "cancselled", "canelled", "cancel"}

// TooManyEventsError is the soft failure returned when a report window
// matches more events than the cap. It renders as a message, not a fault.
type TooManyEventsError struct {
	Matched int
}

func (e *TooManyEventsError) Error() string {
	return fmt.Sprintf("Too many events found: (%d). Please narrow your search.", e.Matched)
}

// ReportServiceOptions groups dependencies for ReportService.
type ReportServiceOptions struct {
	Logger *slog.Logger
}

// ReportService holds the read-only report procedures. Each procedure takes
// the session-scoped fetcher it should read through, so the same service
// instance serves every logged-in member.
type ReportService struct {
	logger *slog.Logger
}

// NewReportService constructs a new ReportService.
func NewReportService(opts ReportServiceOptions) *ReportService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{logger: logger}
}

// MissingInstructorCheckins finds past events since startDate (YYYY-MM-DD)
// whose instructor registrations were not all checked in.
func (s *ReportService) MissingInstructorCheckins(
	ctx context.Context,
	fetcher ports.Fetcher,
	startDate string,
) (*model.CheckinReport, error) {
	filter := fmt.Sprintf(
		"StartDate gt %s AND IsUpcoming eq false AND (substringof('Name', '_S') OR substringof('Name', '_P'))",
		startDate)

	result, err := fetcher.Fetch(ctx, model.PageRequest{Resource: "Events", Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	events := make([]map[string]any, 0, len(result.Records()))
	for _, event := range result.Records() {
		if isCancelledName(stringField(event, "Name")) {
			continue
		}
		events = append(events, event)
	}
	s.logger.DebugContext(ctx, "events to check", "count", len(events))

	if len(events) > maxCheckinEvents {
		return nil, &TooManyEventsError{Matched: len(events)}
	}

	report := &model.CheckinReport{Events: []model.CheckinGap{}, StartDate: startDate}
	for _, event := range events {
		eventID := int64Field(event, "Id")
		regs, err := fetcher.Fetch(ctx, model.PageRequest{Resource: "EventRegistrations", EventID: eventID})
		if err != nil {
			return nil, fmt.Errorf("fetch registrations for event %d: %w", eventID, err)
		}

		missing := missingInstructors(regs.Records())
		if len(missing) == 0 {
			continue
		}

		rawDate := stringField(event, "StartDate")
		display, ok := util.ReformatEventDate(rawDate)
		if !ok {
			s.logger.DebugContext(ctx, "event date left unformatted", "event_id", eventID, "value", rawDate)
		}

		report.Events = append(report.Events, model.CheckinGap{
			EventID:            eventID,
			EventName:          stringField(event, "Name"),
			StartDateDisplay:   display,
			MissingInstructors: missing,
		})
	}
	s.logger.DebugContext(ctx, "events with missing instructor checkins", "count", len(report.Events))

	return report, nil
}

// missingInstructors returns the display names of instructor registrations
// that are not checked in. Instructor registrations are identified by
// registration type name, not id: not all instructor registrations share an
// id number.
func missingInstructors(registrations []map[string]any) []string {
	var missing []string
	for _, reg := range registrations {
		regType, _ := reg["RegistrationType"].(map[string]any)
		if !strings.Contains(stringField(regType, "Name"), "Instructor") {
			continue
		}
		if checkedIn, _ := reg["IsCheckedIn"].(bool); checkedIn {
			continue
		}
		missing = append(missing, stringField(reg, "DisplayName"))
	}
	return missing
}

// SlackOrphans reconciles an uploaded Slack roster against the member
// directory: an orphan is an active, non-alumni Slack user whose email does
// not belong to any member. Returns the orphans and how many member emails
// were considered valid.
func (s *ReportService) SlackOrphans(
	ctx context.Context,
	fetcher ports.Fetcher,
	roster []model.RosterUser,
) (*model.OrphanReport, error) {
	result, err := fetcher.Fetch(ctx, model.PageRequest{Resource: "Contacts", Select: "Email"})
	if err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}

	valid := make(map[string]struct{})
	for _, contact := range result.Records() {
		email := strings.ToLower(strings.TrimSpace(stringField(contact, "Email")))
		if email == "" || !isPlausibleEmail(email) {
			continue
		}
		valid[email] = struct{}{}
	}
	s.logger.DebugContext(ctx, "valid member emails", "count", len(valid))

	report := &model.OrphanReport{Orphans: []model.SlackOrphan{}, ValidEmailCount: len(valid)}
	for _, user := range roster {
		if !user.IsActiveMemberCandidate() {
			continue
		}
		email := strings.ToLower(strings.TrimSpace(user.Email))
		if _, ok := valid[email]; ok {
			continue
		}
		report.Orphans = append(report.Orphans, model.SlackOrphan{
			Username: user.Username,
			FullName: user.FullName,
			Email:    user.Email,
		})
	}

	return report, nil
}

// isPlausibleEmail reports whether the address parses and its domain sits
// under a real public suffix. Free-form directory entries ("n/a", bare
// names) fall out here rather than polluting the valid set.
func isPlausibleEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return false
	}
	_, err = publicsuffix.EffectiveTLDPlusOne(addr.Address[at+1:])
	return err == nil
}

// MakerschoolRegistrations summarizes registrations against limits for
// upcoming makerschool events.
func (s *ReportService) MakerschoolRegistrations(
	ctx context.Context,
	fetcher ports.Fetcher,
) (*model.MakerschoolReport, error) {
	filter := "IsUpcoming eq true AND substringof('Name', '_MS')"

	result, err := fetcher.Fetch(ctx, model.PageRequest{Resource: "Events", Filter: filter})
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	report := &model.MakerschoolReport{Events: []model.EventCapacity{}}
	for _, event := range result.Records() {
		eventID := int64Field(event, "Id")
		regs, err := fetcher.Fetch(ctx, model.PageRequest{Resource: "EventRegistrations", EventID: eventID})
		if err != nil {
			return nil, fmt.Errorf("fetch registrations for event %d: %w", eventID, err)
		}

		capacity := model.EventCapacity{
			EventID:           eventID,
			Name:              stringField(event, "Name"),
			Registrations:     len(regs.Records()),
			RegistrationLimit: int(int64Field(event, "RegistrationsLimit")),
		}
		report.Events = append(report.Events, capacity)
		report.TotalRegistrations += capacity.Registrations
		report.TotalRegistrationLimit += capacity.RegistrationLimit
	}

	return report, nil
}

func isCancelledName(name string) bool {
	lower := strings.ToLower(name)
	for _, word := range cancelWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func stringField(rec map[string]any, key string) string {
	s, _ := rec[key].(string)
	return s
}

func int64Field(rec map[string]any, key string) int64 {
	switch v := rec[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
