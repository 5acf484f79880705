// pkg/email/email.go
package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"time"
)

type EmailService struct {
	apiKey    string
	from      string
	templates *template.Template
}

type EmailData struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Html    string `json:"html"`
}

// Template data structures
type SubscriptionEmailData struct {
	CompanyName string
	PlanName    string
	MaxListings int
	IsRenewal   bool
}

type SubscriptionCancelledData struct {
	CompanyName string
	PlanName    string
}

type PaymentFailedData struct {
	CompanyName  string
	AttemptCount int
	GraceDays    int
}

type SlotExpiryWarningData struct {
	CompanyName string
	ListingID   uint
	ExpiresAt   time.Time
}

type SlotExpiredData struct {
	CompanyName string
	ListingID   uint
}

func NewEmailService(apiKey string) (*EmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %v", err)
	}

	return &EmailService{
		apiKey:    apiKey,
		from:      "LodgePage <noreply@lodgepage.com>",
		templates: templates,
	}, nil
}

func (s *EmailService) sendTemplateEmail(to, subject, templateName string, data interface{}) error {
	var body bytes.Buffer
	if err := s.templates.ExecuteTemplate(&body, templateName, data); err != nil {
		return fmt.Errorf("template execution error: %v", err)
	}

	emailData := EmailData{
		From:    s.from,
		To:      to,
		Subject: subject,
		Html:    body.String(),
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("error marshaling email data: %v", err)
	}

	req, err := http.NewRequest("POST", "https://api.resend.com/emails", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("resend API error: %s", string(respBody))
	}

	log.Printf("Sent %s email to %s", templateName, to)
	return nil
}

// Email sending methods
func (s *EmailService) SendSubscriptionStartedEmail(email, companyName, planName string, maxListings int, isRenewal bool) error {
	data := SubscriptionEmailData{
		CompanyName: companyName,
		PlanName:    planName,
		MaxListings: maxListings,
		IsRenewal:   isRenewal,
	}

	subject := "Welcome to LodgePage Premium! 🎉"
	if isRenewal {
		subject = "Your LodgePage Subscription Has Been Renewed 🔄"
	}

	return s.sendTemplateEmail(email, subject, "subscription_started.html", data)
}

func (s *EmailService) SendSubscriptionCancelledEmail(email, companyName, planName string) error {
	data := SubscriptionCancelledData{
		CompanyName: companyName,
		PlanName:    planName,
	}
	return s.sendTemplateEmail(email, "Your Subscription Has Been Cancelled", "subscription_cancelled.html", data)
}

func (s *EmailService) SendPaymentFailedEmail(email, companyName string, attemptCount, graceDays int) error {
	data := PaymentFailedData{
		CompanyName:  companyName,
		AttemptCount: attemptCount,
		GraceDays:    graceDays,
	}
	return s.sendTemplateEmail(email, "Payment Failed for Your Subscription ⚠️", "payment_failed.html", data)
}

func (s *EmailService) SendSlotExpiryWarning(email, companyName string, listingID uint, expiresAt time.Time) error {
	data := SlotExpiryWarningData{
		CompanyName: companyName,
		ListingID:   listingID,
		ExpiresAt:   expiresAt,
	}
	return s.sendTemplateEmail(
		email,
		"Your Listing Will Leave Search Results Soon ⚠️",
		"slot_expiry_warning.html",
		data,
	)
}

func (s *EmailService) SendSlotExpiredEmail(email, companyName string, listingID uint) error {
	data := SlotExpiredData{
		CompanyName: companyName,
		ListingID:   listingID,
	}
	return s.sendTemplateEmail(email, "Your Listing Is No Longer Publicly Visible", "slot_expired.html", data)
}
