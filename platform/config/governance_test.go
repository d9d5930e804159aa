package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMergeFileOverridesOnlySetValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governance.yaml")
	content := []byte(`
leakage:
  interval: 1m
  stale_after: 45m
abuse:
  spend_multiplier: 5
escalation:
  urgency_phrases: ["now or never"]
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	g := DefaultGovernance()
	if err := g.MergeFile(path); err != nil {
		t.Fatalf("merge: %v", err)
	}

	if g.Leakage.Interval != time.Minute {
		t.Fatalf("expected interval 1m, got %s", g.Leakage.Interval)
	}
	if g.Leakage.StaleAfter != 45*time.Minute {
		t.Fatalf("expected stale_after 45m, got %s", g.Leakage.StaleAfter)
	}
	if g.Leakage.Cooldown != 2*time.Hour {
		t.Fatalf("cooldown default should survive, got %s", g.Leakage.Cooldown)
	}
	if g.Abuse.SpendMultiplier != 5 {
		t.Fatalf("expected spend multiplier 5, got %v", g.Abuse.SpendMultiplier)
	}
	if g.Abuse.LeadMultiplier != 20 {
		t.Fatalf("lead multiplier default should survive, got %v", g.Abuse.LeadMultiplier)
	}
	if len(g.Escalation.UrgencyPhrases) != 1 || g.Escalation.UrgencyPhrases[0] != "now or never" {
		t.Fatalf("unexpected urgency phrases: %v", g.Escalation.UrgencyPhrases)
	}
	if len(g.Escalation.SensitiveKeywords) == 0 {
		t.Fatal("sensitive keywords default should survive")
	}
}

func TestMergeFileRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("leakage: [unterminated"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	g := DefaultGovernance()
	if err := g.MergeFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
