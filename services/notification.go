package services

import (
	"fmt"
	"time"

	"github.com/renewly/renewly/utils"
	"gopkg.in/gomail.v2"
)

// Lifecycle event types consumed by the notification dispatcher.
const (
	EventSubscriptionActivated   = "subscription.activated"
	EventSubscriptionCancelled   = "subscription.cancelled"
	EventSubscriptionReactivated = "subscription.reactivated"
	EventSubscriptionRenewed     = "subscription.renewed"
	EventSubscriptionSuspended   = "subscription.suspended"
	EventPaymentConfirmed        = "payment.confirmed"
	EventRenewalFailed           = "payment.renewal_failed"
)

// LifecycleEvent carries the context a dispatcher needs to notify a user
// about a subscription transition.
type LifecycleEvent struct {
	Type     string    `json:"type"`
	UserID   uint      `json:"user_id"`
	Email    string    `json:"email,omitempty"`
	PlanCode string    `json:"plan_code"`
	EndDate  time.Time `json:"end_date"`
	Amount   float64   `json:"amount,omitempty"`
	Currency string    `json:"currency,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Notifier is the inbound interface of the notification subsystem. Dispatch
// is best-effort everywhere: a failure is logged by the caller, never rolled
// back into the state transition that produced the event.
type Notifier interface {
	Dispatch(event LifecycleEvent) error
}

// EmailNotifier delivers lifecycle events over SMTP.
type EmailNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailNotifier creates a notifier using the given SMTP settings.
func NewEmailNotifier(host string, port int, username, password, from string) *EmailNotifier {
	return &EmailNotifier{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

var eventSubjects = map[string]string{
	EventSubscriptionActivated:   "Your subscription is active",
	EventSubscriptionCancelled:   "Your subscription has been cancelled",
	EventSubscriptionReactivated: "Welcome back - subscription reactivated",
	EventSubscriptionRenewed:     "Your subscription has been renewed",
	EventSubscriptionSuspended:   "Your subscription is suspended",
	EventPaymentConfirmed:        "Payment received",
	EventRenewalFailed:           "We could not renew your subscription",
}

// Dispatch sends a minimal email for the event. Events without a recipient
// address are dropped.
func (n *EmailNotifier) Dispatch(event LifecycleEvent) error {
	if event.Email == "" {
		return nil
	}

	subject, ok := eventSubjects[event.Type]
	if !ok {
		subject = "Subscription update"
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", event.Email)
	m.SetHeader("Subject", subject)

	body := fmt.Sprintf(`
		<p>%s</p>
		<p>Plan: %s</p>
		<p>Valid until: %s</p>
	`, subject, event.PlanCode, event.EndDate.Format("2006-01-02"))
	if event.Message != "" {
		body += fmt.Sprintf("<p>%s</p>", event.Message)
	}
	m.SetBody("text/html", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send %s email to %s: %v", event.Type, event.Email, err)
	}
	return nil
}

// LogNotifier writes lifecycle events to the application log. Used when SMTP
// is not configured and as the default in tests.
type LogNotifier struct{}

// Dispatch logs the event.
func (LogNotifier) Dispatch(event LifecycleEvent) error {
	utils.LogInfo("Lifecycle event %s for user ID: %d, plan: %s", event.Type, event.UserID, event.PlanCode)
	return nil
}
