// Package outreach sends messages to leads on the channel they came in on.
package outreach

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/leads/repository"

	"github.com/google/uuid"
)

// ErrNoChannel is returned when the lead has no reachable channel configured.
var ErrNoChannel = errors.New("no delivery channel for lead")

const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) (repository.Lead, error)
}

type WhatsAppSender interface {
	SendMessage(ctx context.Context, phoneNumber, message string) error
}

type EmailSender interface {
	SendLeadFollowUp(ctx context.Context, toEmail, contactName, body string) error
}

// Sender routes a message to WhatsApp or email. Either transport may be nil.
type Sender struct {
	leads    LeadReader
	whatsapp WhatsAppSender
	email    EmailSender
}

func NewSender(leads LeadReader, whatsapp WhatsAppSender, email EmailSender) *Sender {
	return &Sender{leads: leads, whatsapp: whatsapp, email: email}
}

// Send delivers text to the lead and reports the channel used. The lead's own
// channel is preferred; the other one is tried when it is not reachable.
func (s *Sender) Send(ctx context.Context, tenantID, leadID uuid.UUID, text string) (string, error) {
	lead, err := s.leads.GetByID(ctx, leadID, tenantID)
	if err != nil {
		return "", fmt.Errorf("load lead: %w", err)
	}

	order := []string{ChannelWhatsApp, ChannelEmail}
	if lead.Channel == ChannelEmail {
		order = []string{ChannelEmail, ChannelWhatsApp}
	}
	for _, ch := range order {
		switch {
		case ch == ChannelWhatsApp && s.whatsapp != nil && lead.HasWhatsApp && lead.ContactPhone != nil:
			return ch, s.whatsapp.SendMessage(ctx, *lead.ContactPhone, text)
		case ch == ChannelEmail && s.email != nil && lead.ContactEmail != nil && *lead.ContactEmail != "":
			return ch, s.email.SendLeadFollowUp(ctx, *lead.ContactEmail, lead.ContactName, text)
		}
	}
	return "", ErrNoChannel
}
