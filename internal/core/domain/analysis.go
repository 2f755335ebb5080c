package domain

import "time"

// Wire DTOs for the external classification endpoint. These are never
// persisted; the store only holds ErrorEvents.

// AnalysisLogEntry is the per-event payload sent for classification.
type AnalysisLogEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stackTrace"`
	Source     string    `json:"source"`
}

// AnalysisParameters are fixed request knobs.
type AnalysisParameters struct {
	IncludeClassification bool `json:"includeClassification"`
	IncludePriority       bool `json:"includePriority"`
	IncludeReasoning      bool `json:"includeReasoning"`
	MaxResponseTimeSecs   int  `json:"maxResponseTimeSeconds"`
}

// AnalysisRequest is the POST body for /api/analyze.
type AnalysisRequest struct {
	Logs       []AnalysisLogEntry `json:"logs"`
	Context    *HistoricalContext `json:"context,omitempty"`
	Parameters AnalysisParameters `json:"parameters"`
}

// AnalysisResult is the per-event classification returned by the endpoint.
type AnalysisResult struct {
	LogID           string   `json:"logId"`
	Severity        Severity `json:"severity"`
	Priority        Priority `json:"priority"`
	Reasoning       string   `json:"reasoning"`
	PotentialFix    string   `json:"potentialFix"`
	ConfidenceScore float64  `json:"confidenceScore"`
}

// AnalysisResponse is the full endpoint response.
type AnalysisResponse struct {
	Results           []AnalysisResult `json:"results"`
	OverallAssessment string           `json:"overallAssessment"`
	Recommendations   []string         `json:"recommendations"`
}
