package email

const (
	subjectLeadFollowUp  = "Following up on your message"
	subjectAgentAlertFmt = "[%s] %s"
)
