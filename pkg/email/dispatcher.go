// pkg/email/dispatcher.go
package email

import (
	"context"
	"log"
	"time"

	"lodgepage_backend/internal/notify"
	"lodgepage_backend/internal/store"
)

// Dispatcher adapts the email service to the engine's fire-and-forget
// notification boundary. Failures are logged, never returned: a state
// transition must not block on mail delivery.
type Dispatcher struct {
	Service *EmailService
	Hosts   store.HostStore
}

func NewDispatcher(service *EmailService, hosts store.HostStore) *Dispatcher {
	return &Dispatcher{Service: service, Hosts: hosts}
}

func (d *Dispatcher) Dispatch(template string, hostID uint, vars map[string]interface{}) {
	if d.Service == nil {
		return
	}

	host, err := d.Hosts.GetHost(context.Background(), hostID)
	if err != nil {
		log.Printf("Could not resolve host %d for %s notification: %v", hostID, template, err)
		return
	}

	switch template {
	case notify.TemplateSubscriptionStarted:
		err = d.Service.SendSubscriptionStartedEmail(host.Email, host.CompanyName, asString(vars["plan"]), asInt(vars["max_listings"]), false)
	case notify.TemplateSubscriptionRenewed:
		err = d.Service.SendSubscriptionStartedEmail(host.Email, host.CompanyName, asString(vars["plan"]), asInt(vars["max_listings"]), true)
	case notify.TemplateSubscriptionCancelled:
		err = d.Service.SendSubscriptionCancelledEmail(host.Email, host.CompanyName, asString(vars["plan"]))
	case notify.TemplatePaymentFailed:
		err = d.Service.SendPaymentFailedEmail(host.Email, host.CompanyName, asInt(vars["attempt"]), 7)
	case notify.TemplateSlotExpiryWarning:
		err = d.Service.SendSlotExpiryWarning(host.Email, host.CompanyName, asUint(vars["listing_id"]), asTime(vars["expires_at"]))
	case notify.TemplateSlotExpired:
		err = d.Service.SendSlotExpiredEmail(host.Email, host.CompanyName, asUint(vars["listing_id"]))
	default:
		log.Printf("No email mapping for notification template %s", template)
		return
	}

	if err != nil {
		log.Printf("Could not send %s email to %s: %v", template, host.Email, err)
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	n, _ := v.(int)
	return n
}

func asUint(v interface{}) uint {
	n, _ := v.(uint)
	return n
}

func asTime(v interface{}) time.Time {
	t, _ := v.(time.Time)
	return t
}
