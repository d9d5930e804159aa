package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskNotificationOutboxDue = "notification.outbox.due"

// TaskLeadAIRecovery retries a cold lead through the AI follow-up path.
const TaskLeadAIRecovery = "leads.ai_recovery"

type NotificationOutboxDuePayload struct {
	OutboxID string `json:"outboxId"`
	TenantID string `json:"tenantId"`
}

type LeadAIRecoveryPayload struct {
	TenantID string `json:"tenantId"`
	LeadID   string `json:"leadId"`
}

func NewNotificationOutboxDueTask(payload NotificationOutboxDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationOutboxDue, data), nil
}

func ParseNotificationOutboxDuePayload(task *asynq.Task) (NotificationOutboxDuePayload, error) {
	var payload NotificationOutboxDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NotificationOutboxDuePayload{}, err
	}
	return payload, nil
}

func NewLeadAIRecoveryTask(payload LeadAIRecoveryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadAIRecovery, data), nil
}

func ParseLeadAIRecoveryPayload(task *asynq.Task) (LeadAIRecoveryPayload, error) {
	var payload LeadAIRecoveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadAIRecoveryPayload{}, err
	}
	return payload, nil
}
