// Package report defines the transient inputs reported by the coding agent
// (observations, test failures, questions) and the records derived from them.
// None of these have a lifecycle of their own.
package report

import (
	"time"

	"github.com/Strob0t/taskrelay/internal/domain/task"
)

// Severity grades an observation or alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// ObservationType classifies what the agent noticed.
type ObservationType string

const (
	TypeDiscovery           ObservationType = "discovery"
	TypeIssue               ObservationType = "issue"
	TypeImprovement         ObservationType = "improvement"
	TypeDependency          ObservationType = "dependency"
	TypeTestFailure         ObservationType = "test-failure"
	TypeArchitectureConcern ObservationType = "architecture-concern"
)

// Valid reports whether t is a known observation type.
func (t ObservationType) Valid() bool {
	switch t {
	case TypeDiscovery, TypeIssue, TypeImprovement, TypeDependency,
		TypeTestFailure, TypeArchitectureConcern:
		return true
	}
	return false
}

// Outcome is the agent's reported result for a task.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeFailed  Outcome = "failed"
	OutcomeBlocked Outcome = "blocked"
	OutcomePartial Outcome = "partial"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeDone, OutcomeFailed, OutcomeBlocked, OutcomePartial:
		return true
	}
	return false
}

// PriorityForSeverity maps the report severity scale onto queue priorities.
// critical and high both land on P1; the distinction survives only in the
// queue-position hint and the alert.
func PriorityForSeverity(s Severity) task.Priority {
	switch s {
	case SeverityCritical, SeverityHigh:
		return task.PriorityP1
	case SeverityMedium:
		return task.PriorityP2
	default:
		return task.PriorityP3
	}
}

// Queue position hints returned when an observation spawns a task.
const (
	PositionImmediate         = "immediate"
	PositionNearFront         = "near-front"
	PositionAfterDependencies = "after-dependencies"
)

// QueuePositionHint returns where a task created for an observation of
// severity s is expected to land.
func QueuePositionHint(s Severity) string {
	switch s {
	case SeverityCritical:
		return PositionImmediate
	case SeverityHigh:
		return PositionNearFront
	default:
		return PositionAfterDependencies
	}
}

// Automation tiers for verification tasks.
const (
	TierComprehensive = "comprehensive"
	TierStandard      = "standard"
	TierSmoke         = "smoke"
)

// TierForPriority picks the verification automation tier from the priority
// of the task being verified.
func TierForPriority(p task.Priority) string {
	switch p {
	case task.PriorityP1:
		return TierComprehensive
	case task.PriorityP2:
		return TierStandard
	default:
		return TierSmoke
	}
}

// ObservationClass is the keyword classification of a free-text note.
type ObservationClass string

const (
	ClassFollowUpSuggested ObservationClass = "follow-up-suggested"
	ClassActionRequired    ObservationClass = "action-required"
	ClassNoted             ObservationClass = "noted"
)

// ClassifiedObservation pairs a note with its classification.
type ClassifiedObservation struct {
	Text  string           `json:"text"`
	Class ObservationClass `json:"classification"`
}

// FailureCategory is the likely cause family of a test failure.
type FailureCategory string

const (
	CategorySetup       FailureCategory = "setup-or-mock"
	CategoryLogic       FailureCategory = "logic-error"
	CategoryAsync       FailureCategory = "async-timing"
	CategoryStub        FailureCategory = "stub-misconfiguration"
	CategoryDependency  FailureCategory = "dependency"
	CategoryEnvironment FailureCategory = "environment"
)

// MaxSuggestions caps the investigation suggestions in a RootCause.
const MaxSuggestions = 5

// RootCause is the heuristic analysis of a test failure.
type RootCause struct {
	Category    FailureCategory `json:"category"`
	LikelyCause string          `json:"likelyCause"`
	Suggestions []string        `json:"suggestions"`
}

// TestFailure is a failing test reported against a task.
type TestFailure struct {
	TaskID             string   `json:"taskId"`
	TestName           string   `json:"testName"`
	ErrorMessage       string   `json:"errorMessage"`
	StackTrace         string   `json:"stackTrace,omitempty"`
	TestFile           string   `json:"testFile,omitempty"`
	PreviouslyPassed   bool     `json:"previouslyPassed"`
	PossibleCauses     []string `json:"possibleCauses,omitempty"`
	NeedsInvestigation bool     `json:"needsInvestigation"`
}

// Observation is a free-text note attached to a task.
type Observation struct {
	ID           string          `json:"observationId"`
	TaskID       string          `json:"taskId"`
	Text         string          `json:"observation"`
	Severity     Severity        `json:"severity"`
	Type         ObservationType `json:"type"`
	RelatedFiles []string        `json:"relatedFiles,omitempty"`
	RecordedAt   time.Time       `json:"recordedAt"`
}

// RaisesAlert reports whether the observation must surface as an alert.
func (o *Observation) RaisesAlert() bool {
	return o.Severity == SeverityCritical || o.Severity == SeverityHigh ||
		o.Type == TypeArchitectureConcern
}

// Alert is an ephemeral dashboard notice. It is never scheduled.
type Alert struct {
	ID                     string    `json:"alertId"`
	Message                string    `json:"message"`
	Severity               Severity  `json:"severity"`
	TaskID                 string    `json:"taskId,omitempty"`
	Source                 string    `json:"source"`
	RequiresHumanAttention bool      `json:"requiresHumanAttention"`
	Timestamp              time.Time `json:"timestamp"`
}

// ConfidenceThreshold is the confidence below which an answer always carries
// its uncertainty explanation.
const ConfidenceThreshold = 0.7

// UnmatchedConfidence is the fixed confidence of an answer to a question that
// matched no known topic.
const UnmatchedConfidence = 0.35

// Question is a query from the agent.
type Question struct {
	Text    string `json:"question"`
	TaskID  string `json:"taskId,omitempty"`
	Context string `json:"context,omitempty"`
}

// Answer is the response to a Question.
type Answer struct {
	Answer           string   `json:"answer"`
	Confidence       float64  `json:"confidence"`
	Topics           []string `json:"topics"`
	Evidence         string   `json:"evidence,omitempty"`
	Guidance         []string `json:"guidance,omitempty"`
	RelatedDecisions []string `json:"relatedDecisions,omitempty"`
	Uncertainty      string   `json:"uncertainty,omitempty"`
}
