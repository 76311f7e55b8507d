package store

import (
	"encoding/json"
	"time"
)

// Status is the terminal outcome recorded for a submission.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Answer is one question response collected by the wizard.
type Answer struct {
	QuestionID string `json:"question_id" yaml:"question_id"`
	Value      string `json:"value" yaml:"value"`
}

// Submission is one persisted feedback session.
type Submission struct {
	ID              int64
	SessionID       string
	Mode            string
	Status          Status
	RemoteID        string
	SizeBytes       int64
	DurationSeconds int64
	Answers         []Answer
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Duration returns the recorded duration.
func (s Submission) Duration() time.Duration {
	return time.Duration(s.DurationSeconds) * time.Second
}

func encodeAnswers(answers []Answer) (any, error) {
	if len(answers) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeAnswers(raw string) []Answer {
	if raw == "" {
		return nil
	}
	var answers []Answer
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil
	}
	return answers
}
