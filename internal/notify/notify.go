// Package notify sends post-planning emails. Delivery is best effort: the
// planner never blocks or fails on a notification, failures are logged and
// counted only.
package notify

import (
	"context"
	"log/slog"
	"time"

	gomail "gopkg.in/gomail.v2"

	"logiflow/internal/metrics"
	"logiflow/internal/model"
)

// Notifier is the outbound notification boundary.
type Notifier interface {
	NotifyDriver(ctx context.Context, driver model.Driver, route model.Route, day time.Time) error
	NotifyManager(ctx context.Context, depot model.Depot, drivers map[int64]model.Driver, plan model.PlanResult, day time.Time) error
}

// SMTPConfig carries mail relay settings. An empty User disables sending.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Mailer sends the French HTML notifications over SMTP.
type Mailer struct {
	cfg SMTPConfig
	log *slog.Logger

	// send is swapped in tests.
	send func(m *gomail.Message) error
}

func NewMailer(cfg SMTPConfig, log *slog.Logger) *Mailer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	return &Mailer{cfg: cfg, log: log, send: func(m *gomail.Message) error { return d.DialAndSend(m) }}
}

func (m *Mailer) deliver(kind, to, subject, html string) error {
	if m.cfg.User == "" || to == "" {
		m.log.Info("email not configured or recipient empty, skipping", "kind", kind, "to", to)
		metrics.Notifications.WithLabelValues(kind, "skipped").Inc()
		return nil
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)
	if err := m.send(msg); err != nil {
		metrics.Notifications.WithLabelValues(kind, "error").Inc()
		m.log.Error("email send failed", "kind", kind, "to", to, "err", err)
		return err
	}
	metrics.Notifications.WithLabelValues(kind, "sent").Inc()
	return nil
}

// NotifyDriver mails one driver their assigned route for the planned day.
func (m *Mailer) NotifyDriver(ctx context.Context, driver model.Driver, route model.Route, day time.Time) error {
	subject := "Votre itinéraire de livraison - " + day.Format("02/01/2006")
	html, err := renderDriverMail(driver, route, day)
	if err != nil {
		return err
	}
	return m.deliver("driver", driver.Email, subject, html)
}

// NotifyManager mails the depot manager a summary of the committed plan.
func (m *Mailer) NotifyManager(ctx context.Context, depot model.Depot, drivers map[int64]model.Driver, plan model.PlanResult, day time.Time) error {
	subject := "Résumé Optimisation - " + depot.Name + " - " + day.Format("02/01/2006")
	html, err := renderManagerMail(depot, drivers, plan, day)
	if err != nil {
		return err
	}
	return m.deliver("manager", depot.ManagerEmail, subject, html)
}
