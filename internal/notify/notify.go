// Package notify is the fire-and-forget boundary to the notification
// collaborator. Dispatch never returns an error: delivery failures are the
// implementation's problem to log, state transitions must not block on them.
package notify

import "log"

const (
	TemplateSubscriptionStarted   = "subscription_started"
	TemplateSubscriptionRenewed   = "subscription_renewed"
	TemplateSubscriptionCancelled = "subscription_cancelled"
	TemplatePaymentFailed         = "payment_failed"
	TemplateSlotExpiryWarning     = "slot_expiry_warning"
	TemplateSlotExpired           = "slot_expired"
)

type Dispatcher interface {
	Dispatch(template string, hostID uint, vars map[string]interface{})
}

// LogDispatcher only logs. Used in tests and as the fallback when no email
// service is configured.
type LogDispatcher struct{}

func (LogDispatcher) Dispatch(template string, hostID uint, vars map[string]interface{}) {
	log.Printf("notification %s for host %d: %v", template, hostID, vars)
}
