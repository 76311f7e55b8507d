package api

import (
	"feedbackpipe/internal/deps"
	"feedbackpipe/internal/pipeline"
	"feedbackpipe/internal/store"
)

// FromSubmission converts a stored submission to its API representation.
func FromSubmission(sub *store.Submission) Submission {
	if sub == nil {
		return Submission{}
	}
	dto := Submission{
		SessionID:       sub.SessionID,
		Mode:            sub.Mode,
		Status:          string(sub.Status),
		RemoteID:        sub.RemoteID,
		SizeBytes:       sub.SizeBytes,
		DurationSeconds: sub.DurationSeconds,
		Answers:         make([]Answer, len(sub.Answers)),
		ErrorMessage:    sub.ErrorMessage,
	}
	for i, a := range sub.Answers {
		dto.Answers[i] = Answer{QuestionID: a.QuestionID, Value: a.Value}
	}
	if !sub.CreatedAt.IsZero() {
		dto.CreatedAt = sub.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !sub.UpdatedAt.IsZero() {
		dto.UpdatedAt = sub.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromSubmissions converts a slice, dropping nil entries.
func FromSubmissions(subs []*store.Submission) []Submission {
	out := make([]Submission, 0, len(subs))
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		out = append(out, FromSubmission(sub))
	}
	return out
}

// FromEvent converts a pipeline event.
func FromEvent(e pipeline.Event) SessionEvent {
	dto := SessionEvent{
		SessionID: e.SessionID,
		State:     string(e.State),
		Mode:      e.Mode.String(),
		Progress:  e.Progress,
		Message:   e.Message,
		RemoteID:  e.RemoteID,
	}
	if !e.Time.IsZero() {
		dto.Time = e.Time.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromDependencies converts dependency check results.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// countsByStatus turns store stats into a string-keyed map with every known
// status present.
func countsByStatus(stats map[store.Status]int) map[string]int {
	counts := map[string]int{
		string(store.StatusCompleted): 0,
		string(store.StatusFailed):    0,
	}
	for status, n := range stats {
		counts[string(status)] = n
	}
	return counts
}
