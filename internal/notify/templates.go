package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/hitoshi/eventrsvp/internal/config"
	"github.com/hitoshi/eventrsvp/internal/model"
)

// eventDateLayout はメール本文での開催日時の表記。
const eventDateLayout = "Mon Jan 2 at 3:04 PM"

// message はテンプレートから生成した1通分の件名と本文。
type message struct {
	Subject string
	Text    string
	HTML    string
}

// templateData はテンプレートに渡す値。
type templateData struct {
	Record    *model.RSVPRecord
	Attending bool
	Event     config.EventConfig
	Date      string
	LogoURL   string
}

var guestText = texttemplate.Must(texttemplate.New("guest.txt").Parse(
	`Hi {{.Record.FirstName}},

We {{if .Attending}}look forward to seeing you{{else}}received your response{{end}} for the {{.Event.Name}}.
Date: {{.Date}}
Location: {{.Event.Location}}
{{- if .Record.Notes}}
Notes: {{.Record.Notes}}
{{- end}}

If your plans change, reply to this email.
`))

var guestHTML = template.Must(template.New("guest.html").Parse(
	`<div style="font-family: Arial, sans-serif; color: #333; line-height: 1.6">
{{- if .LogoURL}}
  <img src="{{.LogoURL}}" alt="{{.Event.Brand}}" style="max-width: 200px; margin-bottom: 20px">
{{- end}}
  <h2 style="color: #2c3e50; margin: 0 0 8px">{{if .Attending}}RSVP Confirmed{{else}}RSVP Received{{end}}</h2>
  <p style="margin: 0 0 12px">Hi <strong>{{.Record.FirstName}}</strong>, we {{if .Attending}}look forward to seeing you{{else}}have recorded your response{{end}} for the <strong>{{.Event.Name}}</strong>.</p>
  <div style="margin: 16px 0; padding: 12px; background: #f7f9fc; border-radius: 10px">
    <p style="margin: 0 0 6px"><strong>Guest:</strong> {{.Record.FirstName}} {{.Record.LastName}}</p>
    <p style="margin: 0 0 6px"><strong>Email:</strong> {{.Record.Email}}</p>
    <p style="margin: 0 0 6px"><strong>Phone:</strong> {{.Record.Phone}}</p>
    <p style="margin: 0 0 6px"><strong>Attendance:</strong> {{.Record.WillAttend}}</p>
{{- if .Record.Notes}}
    <p style="margin: 0 0 6px"><strong>Notes:</strong> {{.Record.Notes}}</p>
{{- end}}
  </div>
  <h3 style="color: #2c3e50; margin: 18px 0 10px">Event Details</h3>
  <p style="margin: 0 0 6px"><strong>Date:</strong> {{.Date}}</p>
  <p style="margin: 0 0 6px"><strong>Location:</strong> {{.Event.Location}}</p>
  <p style="margin-top: 24px">– <em>{{.Event.Brand}} Events</em></p>
</div>`))

var internalText = texttemplate.Must(texttemplate.New("internal.txt").Parse(
	`New RSVP:
{{.Record.FirstName}} {{.Record.LastName}}
{{.Record.Email}}
{{.Record.Phone}}
Attend: {{.Record.WillAttend}}
Notes: {{if .Record.Notes}}{{.Record.Notes}}{{else}}(none){{end}}
UTM: {{.Record.UTMSource}}/{{.Record.UTMMedium}}/{{.Record.UTMCampaign}}
`))

var internalHTML = template.Must(template.New("internal.html").Parse(
	`<div style="font-family: Arial, sans-serif; color: #333; line-height: 1.6">
  <h2 style="color: #2c3e50; margin: 0 0 8px">New RSVP — {{.Event.Name}}</h2>
  <ul style="margin: 0; padding-left: 18px">
    <li><strong>Name:</strong> {{.Record.FirstName}} {{.Record.LastName}}</li>
    <li><strong>Email:</strong> {{.Record.Email}}</li>
    <li><strong>Phone:</strong> {{.Record.Phone}}</li>
    <li><strong>Attend:</strong> {{.Record.WillAttend}}</li>
    <li><strong>Notes:</strong> {{if .Record.Notes}}{{.Record.Notes}}{{else}}(none){{end}}</li>
    <li><strong>UTM:</strong> {{.Record.UTMSource}}/{{.Record.UTMMedium}}/{{.Record.UTMCampaign}}</li>
  </ul>
</div>`))

// newTemplateData はレコードとイベント設定からテンプレート値を組み立てる。
func newTemplateData(rec *model.RSVPRecord, ev config.EventConfig, logoURL string) templateData {
	loc := ev.TimeZone
	if loc == nil {
		loc = time.UTC
	}
	return templateData{
		Record:    rec,
		Attending: rec.Attending(),
		Event:     ev,
		Date:      ev.Start.In(loc).Format(eventDateLayout),
		LogoURL:   logoURL,
	}
}

// guestSubject は回答者向けメールの件名を返す。
func guestSubject(ev config.EventConfig, attending bool) string {
	status := "RSVP Received"
	if attending {
		status = "RSVP Confirmed"
	}
	return fmt.Sprintf("%s — %s — %s", ev.Brand, status, ev.Name)
}

// internalSubject は主催者向けメールの件名を返す。
func internalSubject(ev config.EventConfig) string {
	return "New RSVP — " + ev.Name
}

func renderGuest(data templateData) (message, error) {
	text, html, err := render(guestText, guestHTML, data)
	if err != nil {
		return message{}, err
	}
	return message{Subject: guestSubject(data.Event, data.Attending), Text: text, HTML: html}, nil
}

func renderInternal(data templateData) (message, error) {
	text, html, err := render(internalText, internalHTML, data)
	if err != nil {
		return message{}, err
	}
	return message{Subject: internalSubject(data.Event), Text: text, HTML: html}, nil
}

func render(textTmpl *texttemplate.Template, htmlTmpl *template.Template, data templateData) (string, string, error) {
	var textBuf, htmlBuf bytes.Buffer
	if err := textTmpl.Execute(&textBuf, data); err != nil {
		return "", "", fmt.Errorf("%s の描画に失敗しました: %w", textTmpl.Name(), err)
	}
	if err := htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return "", "", fmt.Errorf("%s の描画に失敗しました: %w", htmlTmpl.Name(), err)
	}
	return strings.TrimSpace(textBuf.String()), htmlBuf.String(), nil
}
