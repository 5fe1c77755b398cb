package domain

import "errors"

var (
	// ErrValidation is returned for malformed authoring or answer input.
	ErrValidation = errors.New("validation failed")
	// ErrQuizNotFound indicates no quiz exists under the given code.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAlreadyAttempted is returned when a participant already has a result for the quiz.
	ErrAlreadyAttempted = errors.New("quiz already attempted")
	// ErrStaleReply marks an event that refers to a step the session has already left.
	ErrStaleReply = errors.New("stale reply")
	// ErrTransport wraps outbound delivery failures.
	ErrTransport = errors.New("transport delivery failed")
	// ErrSessionNotFound is returned when the participant has no live session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionElsewhere is returned when another process already runs the participant's session.
	ErrSessionElsewhere = errors.New("quiz session active elsewhere")
	// ErrForbidden is returned when the caller lacks the operator identity, or has it where it is not allowed.
	ErrForbidden = errors.New("forbidden")
	// ErrCodeTaken is returned by repositories when a generated quiz code already exists.
	ErrCodeTaken = errors.New("quiz code already taken")
	// ErrDuplicateRankingUpdate is returned when a result was already counted in a period.
	ErrDuplicateRankingUpdate = errors.New("result already counted in period")
)

// AlreadyAttemptedError carries the participant's earlier result.
type AlreadyAttemptedError struct {
	Prior Result
}

func (e *AlreadyAttemptedError) Error() string {
	return ErrAlreadyAttempted.Error() + ": " + e.Prior.QuizCode
}

func (e *AlreadyAttemptedError) Is(target error) bool {
	return target == ErrAlreadyAttempted
}
