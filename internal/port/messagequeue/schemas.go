package messagequeue

import "time"

// TaskSubmitPayload is the schema for tasks.submit messages. It mirrors the
// admission fields of a task; the relay assigns anything left empty.
type TaskSubmitPayload struct {
	TaskID             string            `json:"taskId"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Priority           string            `json:"priority"`
	Status             string            `json:"status"`
	Dependencies       []string          `json:"dependencies"`
	AcceptanceCriteria []string          `json:"acceptanceCriteria"`
	EstimatedHours     float64           `json:"estimatedHours"`
	RelatedFiles       []string          `json:"relatedFiles"`
	DesignReferences   map[string]string `json:"designReferences"`
	ContextBundle      string            `json:"contextBundle"`
	FromPlanningTeam   bool              `json:"fromPlanningTeam"`
	TicketID           string            `json:"ticketId"`
	Team               string            `json:"team"`
	RoutingConfidence  float64           `json:"routingConfidence"`
	Escalated          bool              `json:"escalated"`
}

// TaskRoutedPayload is the schema for tasks.routed messages.
type TaskRoutedPayload struct {
	TaskID          string `json:"taskId"`
	SessionID       string `json:"sessionId"`
	EstimatedTokens int    `json:"estimatedTokens"`
}

// TaskFinishedPayload is the schema for tasks.finished messages.
type TaskFinishedPayload struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// QueueChangedPayload is the schema for queue.changed messages.
type QueueChangedPayload struct {
	TotalTasks     int            `json:"totalTasks"`
	ByStatus       map[string]int `json:"byStatus"`
	CurrentTask    string         `json:"currentTask,omitempty"`
	ActiveSessions int            `json:"activeSessions"`
}

// AlertRaisedPayload is the schema for alerts.raised messages.
type AlertRaisedPayload struct {
	AlertID                string    `json:"alertId"`
	Message                string    `json:"message"`
	Severity               string    `json:"severity"`
	TaskID                 string    `json:"taskId"`
	RequiresHumanAttention bool      `json:"requiresHumanAttention"`
	Timestamp              time.Time `json:"timestamp"`
}
