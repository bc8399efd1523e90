package notifications

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const transitionTemplate = `Incident: {{ .Transition.Title }}
Category: {{ title .Transition.Category }} ({{ .Transition.Severity }})
Status: {{ humanize .Transition.FromStatus }} -> {{ humanize .Transition.ToStatus }}
By: {{ .Transition.ActorName }}
{{- if .Transition.Reason }}
Reason: {{ .Transition.Reason }}
{{- end }}`

const escalationTemplate = `SLA escalation level {{ .Escalation.Level }} for {{ humanize .Escalation.Category }} {{ .Escalation.SubjectID }}.
Priority: {{ .Escalation.Priority }}
Waiting since: {{ formatTime .Escalation.TriggeredAt }}`

// Renderer renders queue payloads into subject and body text. Webhook
// channels additionally receive the structured payload verbatim.
type Renderer struct {
	templates map[PayloadKind]*template.Template
}

// NewRenderer creates a renderer with the built-in templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":      titleCase,
		"humanize":   humanize,
		"formatTime": formatTime,
	}

	sources := map[PayloadKind]string{
		KindIncidentTransition: transitionTemplate,
		KindSLAEscalation:      escalationTemplate,
	}

	r := &Renderer{templates: make(map[PayloadKind]*template.Template)}
	for kind, src := range sources {
		tmpl, err := template.New(string(kind)).Funcs(funcMap).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", kind, err)
		}
		r.templates[kind] = tmpl
	}
	return r, nil
}

// Render renders a payload. Returns subject and body.
func (r *Renderer) Render(payload NotificationPayload) (subject, body string, err error) {
	tmpl, ok := r.templates[payload.Kind]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", payload.Kind)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", payload.Kind, err)
	}

	return r.renderSubject(payload), strings.TrimSpace(buf.String()), nil
}

// renderSubject generates the notification subject line.
func (r *Renderer) renderSubject(payload NotificationPayload) string {
	switch payload.Kind {
	case KindIncidentTransition:
		return fmt.Sprintf("[%s] %s", humanize(payload.Transition.ToStatus), payload.Transition.Title)
	case KindSLAEscalation:
		label := "SLA Breach"
		if payload.Escalation.Level >= 3 {
			label = "SLA Critical"
		} else if payload.Escalation.Level == 2 {
			label = "SLA Escalation"
		}
		return fmt.Sprintf("[%s] %s %s", label, humanize(payload.Escalation.Category), payload.Escalation.SubjectID)
	default:
		return "Notification"
	}
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

// humanize turns a snake_case enum value into title-cased words.
func humanize(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}
