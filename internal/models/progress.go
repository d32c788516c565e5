package models

// Progress is the phase of a study session. It decides which panel is visible and what a submission
// does.
type Progress string

const (
	// ProgressPending means no topic has been chosen yet.
	ProgressPending Progress = "pending"
	// ProgressStarted means a topic was submitted and the session waits for the question or the answer.
	ProgressStarted Progress = "started"
	// ProgressDone means the feedback was delivered and the session waits for a reset.
	ProgressDone Progress = "done"
)
