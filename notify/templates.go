/*
templates.go - Email bodies per task type

PURPOSE:
  Turns a task Payload into a subject line and an HTML body. Times are
  rendered in the facility time zone; the payload itself stays in UTC.

TEMPLATES (embedded):
  booking_confirmation  templates/confirmation.html
  reminder_24h          templates/reminder.html
  booking_cancellation  templates/cancellation.html
  price_update          templates/price_update.html

SEE ALSO:
  - handler.go: Renders then sends
*/
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/warp/court-engine/generic"
)

//go:embed templates/*.html
var templateFS embed.FS

type templateSpec struct {
	file    string
	subject string
}

var templateSpecs = map[generic.TaskType]templateSpec{
	generic.TaskConfirmation: {"confirmation.html", "Booking confirmed: %s"},
	generic.TaskReminder:     {"reminder.html", "Reminder: %s tomorrow"},
	generic.TaskCancellation: {"cancellation.html", "Booking cancelled: %s"},
	generic.TaskPriceUpdate:  {"price_update.html", "Price update: %s"},
}

// view is what the templates see.
type view struct {
	Payload
	Date          string
	StartTime     string
	EndTime       string
	Price         string
	EffectiveFrom string
}

// Renderer renders notification emails.
type Renderer struct {
	templates map[generic.TaskType]*template.Template
	location  *time.Location
}

func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}
	r := &Renderer{templates: make(map[generic.TaskType]*template.Template), location: loc}
	for taskType, spec := range templateSpecs {
		t, err := template.ParseFS(templateFS, "templates/"+spec.file)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", spec.file, err)
		}
		r.templates[taskType] = t
	}
	return r, nil
}

// Supports reports whether the task type has a template.
func (r *Renderer) Supports(taskType generic.TaskType) bool {
	_, ok := r.templates[taskType]
	return ok
}

// Render returns the subject and HTML body for the task type.
func (r *Renderer) Render(taskType generic.TaskType, p Payload) (string, string, error) {
	t, ok := r.templates[taskType]
	if !ok {
		return "", "", fmt.Errorf("no template for task type %q", taskType)
	}

	v := view{Payload: p, Price: p.Amount.StringFixed(2)}
	if p.Start != nil {
		start := p.Start.In(r.location)
		v.Date = start.Format("Monday 02 January 2006")
		v.StartTime = start.Format(generic.TimeSlotLayout)
	}
	if p.End != nil {
		v.EndTime = p.End.In(r.location).Format(generic.TimeSlotLayout)
	}
	if p.EffectiveFrom != nil {
		v.EffectiveFrom = p.EffectiveFrom.In(r.location).Format("2006-01-02 15:04 MST")
	}

	var body bytes.Buffer
	if err := t.Execute(&body, v); err != nil {
		return "", "", fmt.Errorf("render %s: %w", taskType, err)
	}

	subjectArg := v.Date
	if taskType == generic.TaskPriceUpdate {
		subjectArg = p.DemandClass
	}
	if taskType == generic.TaskReminder {
		subjectArg = p.CourtName
	}
	return fmt.Sprintf(templateSpecs[taskType].subject, subjectArg), body.String(), nil
}
