package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"leadflow_backend/internal/agents"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/notification/inapp"
	"leadflow_backend/internal/notification/outbox"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/slack-go/slack"
)

const invalidOutboxPayloadPrefix = "invalid payload: "

// OutboxStore is the outbox state the Deliverer moves records through.
type OutboxStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

type InAppSender interface {
	Send(ctx context.Context, p inapp.SendParams) (inapp.Notification, error)
}

type AgentDirectory interface {
	GetContact(ctx context.Context, tenantID, agentID uuid.UUID) (agents.Contact, error)
}

type AlertMailer interface {
	SendAgentAlert(ctx context.Context, toEmail, priority, title, body string) error
}

// SlackPoster is satisfied by *slack.Client.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// DeliveryDeps wires the Deliverer. Mailer and Slack may be nil.
type DeliveryDeps struct {
	Outbox       OutboxStore
	InApp        InAppSender
	Agents       AgentDirectory
	Mailer       AlertMailer
	Slack        SlackPoster
	SlackChannel string
}

// Deliverer sends due outbox records to their channels. A returned error
// leaves the record failed and tells the task queue to retry.
type Deliverer struct {
	deps DeliveryDeps
	log  *logger.Logger
}

func NewDeliverer(deps DeliveryDeps, log *logger.Logger) *Deliverer {
	return &Deliverer{deps: deps, log: log}
}

// permanentError marks failures a retry cannot fix.
type permanentError struct{ msg string }

func (e permanentError) Error() string { return e.msg }

// Handle implements events.Handler for NotificationOutboxDue.
func (d *Deliverer) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.NotificationOutboxDue)
	if !ok {
		return nil
	}
	return d.Deliver(ctx, e.OutboxID)
}

func (d *Deliverer) Deliver(ctx context.Context, outboxID uuid.UUID) error {
	rec, err := d.deps.Outbox.GetByID(ctx, outboxID)
	if errors.Is(err, pgx.ErrNoRows) {
		d.log.Warn("outbox record not found; dropping delivery", "outboxId", outboxID)
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded {
		d.log.Debug("outbox record already succeeded; skipping", "outboxId", rec.ID.String())
		return nil
	}
	if err := d.deps.Outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}

	var deliverErr error
	switch rec.Kind {
	case outbox.KindAgent:
		deliverErr = d.deliverAgent(ctx, rec)
	case outbox.KindAdmin:
		deliverErr = d.deliverAdmin(ctx, rec)
	default:
		deliverErr = permanentError{msg: fmt.Sprintf("unsupported outbox kind %q", rec.Kind)}
	}

	if deliverErr != nil {
		if markErr := d.deps.Outbox.MarkFailed(ctx, rec.ID, deliverErr.Error()); markErr != nil {
			d.log.Error("failed to mark outbox record failed", "outboxId", rec.ID.String(), "error", markErr)
		}
		var perm permanentError
		if errors.As(deliverErr, &perm) {
			metrics.NotificationsDelivered.WithLabelValues(rec.Kind, "dropped").Inc()
			d.log.Warn("outbox record dropped", "outboxId", rec.ID.String(), "kind", rec.Kind, "reason", perm.msg)
			return nil
		}
		metrics.NotificationsDelivered.WithLabelValues(rec.Kind, "failed").Inc()
		d.log.Warn("outbox delivery failed", "outboxId", rec.ID.String(), "kind", rec.Kind, "attempt", rec.Attempts+1, "error", deliverErr)
		return deliverErr
	}

	if err := d.deps.Outbox.MarkSucceeded(ctx, rec.ID); err != nil {
		d.log.Error("failed to mark outbox record succeeded", "outboxId", rec.ID.String(), "error", err)
	}
	metrics.NotificationsDelivered.WithLabelValues(rec.Kind, "delivered").Inc()
	d.log.Info("outbox record processed successfully", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
	return nil
}

func (d *Deliverer) deliverAgent(ctx context.Context, rec outbox.Record) error {
	var p agentAlertPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return permanentError{msg: invalidOutboxPayloadPrefix + err.Error()}
	}

	contact, err := d.deps.Agents.GetContact(ctx, rec.TenantID, p.AgentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return permanentError{msg: "agent not found"}
	}
	if err != nil {
		return err
	}
	hasEmail := contact.Email != nil && strings.TrimSpace(*contact.Email) != ""
	if contact.UserID == nil && !hasEmail {
		return permanentError{msg: "agent has no delivery target"}
	}

	if contact.UserID != nil {
		if _, err := d.deps.InApp.Send(ctx, inapp.SendParams{
			TenantID: rec.TenantID,
			UserID:   *contact.UserID,
			Title:    p.Title,
			Body:     p.Body,
			Priority: p.Priority,
		}); err != nil {
			return err
		}
	}

	// Email is a secondary channel; retrying it would duplicate the in-app row.
	if isHighPriority(p.Priority) && hasEmail && d.deps.Mailer != nil {
		if err := d.deps.Mailer.SendAgentAlert(ctx, *contact.Email, p.Priority, p.Title, p.Body); err != nil {
			metrics.BestEffortFailures.WithLabelValues("agent_alert_email").Inc()
			d.log.BestEffortFailure("agent_alert_email", err, "agentId", p.AgentID)
		}
	}
	return nil
}

func (d *Deliverer) deliverAdmin(ctx context.Context, rec outbox.Record) error {
	var p adminAlertPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return permanentError{msg: invalidOutboxPayloadPrefix + err.Error()}
	}
	if d.deps.Slack == nil || d.deps.SlackChannel == "" {
		d.log.Warn("admin alert not sent; slack is not configured", "tenantId", rec.TenantID, "title", p.Title)
		return nil
	}

	_, _, err := d.deps.Slack.PostMessageContext(ctx, d.deps.SlackChannel,
		slack.MsgOptionText(p.Title, false),
		slack.MsgOptionAttachments(slack.Attachment{
			Color:  "danger",
			Title:  p.Title,
			Text:   p.Body,
			Footer: "tenant " + rec.TenantID.String(),
		}),
	)
	return err
}
