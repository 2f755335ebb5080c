package domain

import "time"

// ErrorEvent represents a single application error captured by the ingestion
// boundary. Analysis fields stay empty until a pipeline run classifies the
// event; a merge replaces all of them at once.
type ErrorEvent struct {
	ID           string     `json:"id"`
	Timestamp    time.Time  `json:"timestamp"`
	Source       string     `json:"source"`
	Message      string     `json:"message"`
	StackTrace   string     `json:"stackTrace"`
	Severity     Severity   `json:"severity"`
	Priority     Priority   `json:"priority"`
	AIReasoning  string     `json:"aiReasoning"`
	PotentialFix string     `json:"potentialFix"`
	AnalyzedAt   *time.Time `json:"analyzedAt"`
	IsAnalyzed   bool       `json:"isAnalyzed"`
}

type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Valid reports whether s is one of the closed severity values.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Valid reports whether p is one of the closed priority values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}
