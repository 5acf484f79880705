// pkg/email/templates.go
package email

import "html/template"

// loadTemplates email template'lerini yükler
func loadTemplates() (*template.Template, error) {
	root := template.New("emails")
	for name, body := range templateBodies {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, err
		}
	}
	return root, nil
}

var templateBodies = map[string]string{
	"subscription_started.html": `
<h2>Hello {{.CompanyName}},</h2>
{{if .IsRenewal}}
<p>Your <strong>{{.PlanName}}</strong> subscription has been renewed.</p>
{{else}}
<p>Your <strong>{{.PlanName}}</strong> subscription is now active.</p>
{{end}}
<p>You can keep up to {{.MaxListings}} listings visible in public search.</p>`,

	"subscription_cancelled.html": `
<h2>Hello {{.CompanyName}},</h2>
<p>Your <strong>{{.PlanName}}</strong> subscription has been cancelled.</p>
<p>Listings that are currently visible will stay online until their own expiry dates.</p>`,

	"payment_failed.html": `
<h2>Hello {{.CompanyName}},</h2>
<p>We could not collect your subscription payment (attempt {{.AttemptCount}}).</p>
<p>Please update your payment method within {{.GraceDays}} days to keep your listings visible.</p>`,

	"slot_expiry_warning.html": `
<h2>Hello {{.CompanyName}},</h2>
<p>Your listing will leave public search on {{.ExpiresAt.Format "Jan 2, 2006"}}.</p>
<p>Renew your subscription to keep it visible.</p>`,

	"slot_expired.html": `
<h2>Hello {{.CompanyName}},</h2>
<p>One of your listings is no longer visible in public search.</p>
<p>You can publish it again at any time with an active subscription.</p>`,
}
