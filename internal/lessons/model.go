package lessons

import "time"

// Lesson statuses. A lesson arrives transcribed, moves to analyzing when the
// pipeline claims it, and lands on analyzed or error.
const (
	StatusTranscribed = "transcribed"
	StatusAnalyzing   = "analyzing"
	StatusAnalyzed    = "analyzed"
	StatusError       = "error"
)

// Lesson represents one recorded classroom session and its derived artifacts.
type Lesson struct {
	ID                   string    `json:"id"`
	SchoolID             string    `json:"schoolId"`
	Title                string    `json:"title"`
	GradeLevel           string    `json:"gradeLevel"`
	Subject              string    `json:"subject"`
	Objective            string    `json:"objective"`
	AudioKey             string    `json:"audioKey,omitempty"`
	TranscriptKey        string    `json:"transcriptKey,omitempty"`
	TranscriptText       string    `json:"transcriptText,omitempty"`
	CurriculumKey        string    `json:"curriculumKey,omitempty"`
	CurriculumText       string    `json:"curriculumText,omitempty"`
	TranscriptionCostUSD float64   `json:"transcriptionCostUsd"`
	Status               string    `json:"status"`
	ErrorCode            string    `json:"errorCode,omitempty"`
	ErrorMessage         *string   `json:"errorMessage,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// AnalysisResult is the aggregate produced by one full pipeline run.
// A lesson has at most one result; re-runs replace it.
type AnalysisResult struct {
	ID             string             `json:"id"`
	LessonID       string             `json:"lessonId"`
	Stages         map[string]any     `json:"stages"`
	StageCosts     map[string]float64 `json:"stageCosts"`
	StageProviders map[string]string  `json:"stageProviders"`
	PromptVersions map[string]int     `json:"promptVersions"`
	Adherence      map[string]any     `json:"adherence,omitempty"`
	TotalCostUSD   float64            `json:"totalCostUsd"`
	DurationMS     float64            `json:"durationMs"`
	CreatedAt      time.Time          `json:"createdAt"`
}
