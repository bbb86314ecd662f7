package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"
)

// Template names, also used as metric labels.
const (
	TplInvitation  = "invitation"
	TplApproval    = "approval"
	TplRejection   = "rejection"
	TplCorrections = "corrections"
	TplContract    = "contract"
)

type pair struct {
	subject string
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

var templates = map[string]pair{
	TplInvitation: {
		subject: "You're invited to join the studio as a coach",
		html: htmltemplate.Must(htmltemplate.New(TplInvitation).Parse(`<p>Hello,</p>
<p>You have been invited to join our coaching team ({{.Category}}).</p>
{{if .Message}}<blockquote>{{.Message}}</blockquote>{{end}}
<p><a href="{{.URL}}">Complete your registration</a></p>
<p>This invitation expires in {{.DaysRemaining}} day(s), on {{.ExpiresAt.Format "2006-01-02"}}.</p>`)),
		text: texttemplate.Must(texttemplate.New(TplInvitation).Parse(`Hello,

You have been invited to join our coaching team ({{.Category}}).
{{if .Message}}
{{.Message}}
{{end}}
Complete your registration: {{.URL}}

This invitation expires in {{.DaysRemaining}} day(s), on {{.ExpiresAt.Format "2006-01-02"}}.
`)),
	},
	TplApproval: {
		subject: "Your coach profile has been approved",
		html: htmltemplate.Must(htmltemplate.New(TplApproval).Parse(`<p>Hi {{.Name}},</p>
<p>Your profile was approved. You can now access your dashboard:</p>
<p><a href="{{.URL}}">Open dashboard</a></p>`)),
		text: texttemplate.Must(texttemplate.New(TplApproval).Parse(`Hi {{.Name}},

Your profile was approved. You can now access your dashboard: {{.URL}}
`)),
	},
	TplRejection: {
		subject: "Update on your coach application",
		html: htmltemplate.Must(htmltemplate.New(TplRejection).Parse(`<p>Hi {{.Name}},</p>
<p>We are unable to approve your application at this time.</p>
<p><strong>Reason:</strong> {{.Reason}}</p>`)),
		text: texttemplate.Must(texttemplate.New(TplRejection).Parse(`Hi {{.Name}},

We are unable to approve your application at this time.

Reason: {{.Reason}}
`)),
	},
	TplCorrections: {
		subject: "Corrections needed on your coach application",
		html: htmltemplate.Must(htmltemplate.New(TplCorrections).Parse(`<p>Hi {{.Name}},</p>
<p>Please review the following before we can continue:</p>
<ul>{{range .Corrections}}<li>{{.}}</li>{{end}}</ul>
<p><a href="{{.URL}}">Update your profile</a></p>`)),
		text: texttemplate.Must(texttemplate.New(TplCorrections).Parse(`Hi {{.Name}},

Please review the following before we can continue:
{{range .Corrections}}- {{.}}
{{end}}
Update your profile: {{.URL}}
`)),
	},
	TplContract: {
		subject: "Your contract is ready",
		html: htmltemplate.Must(htmltemplate.New(TplContract).Parse(`<p>Hi {{.Name}},</p>
<p>Version {{.Version}} of your contract is available{{if .Signed}} and signed{{end}}.</p>
<p><a href="{{.URL}}">View contracts</a></p>`)),
		text: texttemplate.Must(texttemplate.New(TplContract).Parse(`Hi {{.Name}},

Version {{.Version}} of your contract is available{{if .Signed}} and signed{{end}}.
View contracts: {{.URL}}
`)),
	},
}

// InvitationData feeds the invitation template.
type InvitationData struct {
	Category      string
	URL           string
	Message       string
	ExpiresAt     time.Time
	DaysRemaining int
}

// CoachData feeds the lifecycle templates.
type CoachData struct {
	Name        string
	URL         string
	Reason      string
	Corrections []string
	Version     int
	Signed      bool
}

// Render builds a Message for template name addressed to to.
func Render(name, to string, data any) (Message, error) {
	tpl, ok := templates[name]
	if !ok {
		return Message{}, fmt.Errorf("mail: unknown template %q", name)
	}
	var html, text bytes.Buffer
	if err := tpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("mail: render %s html: %w", name, err)
	}
	if err := tpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("mail: render %s text: %w", name, err)
	}
	return Message{
		To:       []string{to},
		Subject:  tpl.subject,
		HTML:     html.String(),
		Text:     text.String(),
		Template: name,
	}, nil
}
