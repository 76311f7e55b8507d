package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Submission describes a stored submission in a transport-friendly format.
type Submission struct {
	SessionID       string   `json:"sessionId"`
	Mode            string   `json:"mode"`
	Status          string   `json:"status"`
	RemoteID        string   `json:"remoteId,omitempty"`
	SizeBytes       int64    `json:"sizeBytes"`
	DurationSeconds int64    `json:"durationSeconds"`
	Answers         []Answer `json:"answers"`
	ErrorMessage    string   `json:"errorMessage,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
}

// Answer is one question response.
type Answer struct {
	QuestionID string `json:"questionId"`
	Value      string `json:"value"`
}

// SessionEvent is a pipeline state change as sent to subscribers.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	Mode      string `json:"mode,omitempty"`
	Progress  int    `json:"progress"`
	Message   string `json:"message,omitempty"`
	RemoteID  string `json:"remoteId,omitempty"`
	Time      string `json:"time,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// HealthResponse summarizes service readiness.
type HealthResponse struct {
	Status       string             `json:"status"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Counts       map[string]int     `json:"counts"`
}

// SubmissionListResponse wraps a collection of submissions.
type SubmissionListResponse struct {
	Items []Submission `json:"items"`
}

// SubmissionResponse wraps a single submission.
type SubmissionResponse struct {
	Item Submission `json:"item"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
