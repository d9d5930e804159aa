package email

import (
	"strings"
	"testing"
)

func TestRenderLeadFollowUpEscapesBody(t *testing.T) {
	out, err := renderEmailTemplate("lead_followup.html", leadFollowUpEmailData{
		baseEmailData: baseEmailData{Title: subjectLeadFollowUp, Heading: subjectLeadFollowUp},
		ContactName:   "Dana",
		Body:          "Still interested? <b>Reply</b> here.",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "Hi Dana,") {
		t.Fatalf("expected greeting, got %q", out)
	}
	if strings.Contains(out, "<b>Reply</b>") {
		t.Fatal("body must be HTML escaped")
	}
}

func TestRenderAgentAlert(t *testing.T) {
	out, err := renderEmailTemplate("agent_alert.html", agentAlertEmailData{
		baseEmailData: baseEmailData{Title: "SLA breached", Heading: "SLA breached"},
		Priority:      "urgent",
		Body:          "Lead waiting.",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "SLA breached") || !strings.Contains(out, "urgent") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNewSMTPSenderDisabled(t *testing.T) {
	if s := NewSMTPSender(disabledSMTP{}); s != nil {
		t.Fatal("expected nil sender without configuration")
	}
}

type disabledSMTP struct{}

func (disabledSMTP) GetSMTPHost() string         { return "" }
func (disabledSMTP) GetSMTPPort() int            { return 0 }
func (disabledSMTP) GetSMTPUsername() string     { return "" }
func (disabledSMTP) GetSMTPPassword() string     { return "" }
func (disabledSMTP) GetEmailFromName() string    { return "" }
func (disabledSMTP) GetEmailFromAddress() string { return "" }
func (disabledSMTP) IsSMTPEnabled() bool         { return false }
