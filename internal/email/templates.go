package email

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// NotificationInfo is the data every notification template receives.
type NotificationInfo struct {
	RecipientEmail string
	Subject        string
	Message        string
	Category       string
	Priority       string
	AppName        string
	AppURL         string
	SentAt         time.Time
}

type emailTemplate struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer renders notification emails. Templates are chosen by category
// with "notification" as the fallback.
type Renderer struct {
	templates *template.Template
	subjects  map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	templates := map[string]emailTemplate{
		"notification": {
			Subject: "{{if .Subject}}{{.Subject}}{{else}}New notification from {{.AppName}}{{end}}",
			HTML:    notificationHTML,
			Text:    notificationText,
		},
		"payment": {
			Subject: "{{if .Subject}}{{.Subject}}{{else}}Payment update from {{.AppName}}{{end}}",
			HTML:    paymentHTML,
			Text:    notificationText,
		},
	}

	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("January 2, 2006 15:04 MST")
		},
		"high": func(priority string) bool {
			return strings.EqualFold(priority, "HIGH")
		},
	}

	tmpl := template.New("email").Funcs(funcMap)
	subjects := make(map[string]*template.Template, len(templates))
	for key, t := range templates {
		if _, err := tmpl.New(key + "_html").Parse(t.HTML); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", key, err)
		}
		if _, err := tmpl.New(key + "_text").Parse(t.Text); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", key, err)
		}
		subject, err := template.New(key + "_subject").Parse(t.Subject)
		if err != nil {
			return nil, fmt.Errorf("failed to parse subject template %s: %w", key, err)
		}
		subjects[key] = subject
	}

	return &Renderer{templates: tmpl, subjects: subjects}, nil
}

func (r *Renderer) Render(ctx context.Context, data *NotificationInfo) (*Email, error) {
	_ = ctx
	if data == nil {
		return nil, fmt.Errorf("notification data is required")
	}

	name := data.Category
	if _, ok := r.subjects[name]; !ok {
		name = "notification"
	}

	var htmlBuf, textBuf, subjectBuf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&htmlBuf, name+"_html", data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&textBuf, name+"_text", data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	if err := r.subjects[name].Execute(&subjectBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}

	return &Email{
		To:      data.RecipientEmail,
		Subject: strings.TrimSpace(subjectBuf.String()),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

const notificationText = `{{.Message}}

Sent {{formatDate .SentAt}}
{{if .AppURL}}
{{.AppName}}: {{.AppURL}}{{end}}
`

const notificationHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #2563eb; color: white; padding: 20px; border-radius: 8px 8px 0 0; }
    .header.urgent { background: #dc2626; }
    .content { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
    .footer { text-align: center; padding: 20px; color: #6b7280; font-size: 14px; }
  </style>
</head>
<body>
  <div class="header{{if high .Priority}} urgent{{end}}">
    <h2>{{if .Subject}}{{.Subject}}{{else}}{{.AppName}}{{end}}</h2>
  </div>
  <div class="content">
    <p>{{.Message}}</p>
    <p><small>Sent {{formatDate .SentAt}}</small></p>
  </div>
  <div class="footer">
    {{if .AppURL}}<p><a href="{{.AppURL}}">{{.AppName}}</a></p>{{end}}
  </div>
</body>
</html>
`

const paymentHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .status { padding: 20px; border-radius: 6px; background: white; border-left: 4px solid #059669; }
    .status.failed { border-left-color: #dc2626; }
    .footer { text-align: center; padding: 20px; color: #6b7280; font-size: 14px; }
  </style>
</head>
<body>
  <div class="status{{if high .Priority}} failed{{end}}">
    <h2>Payment update</h2>
    <p>{{.Message}}</p>
    <p><small>{{formatDate .SentAt}}</small></p>
  </div>
  <div class="footer">
    {{if .AppURL}}<p>Review your orders at <a href="{{.AppURL}}">{{.AppName}}</a></p>{{end}}
  </div>
</body>
</html>
`
