package app

// FireTimeout runs the question timer action directly.
func (s *QuizService) FireTimeout(participantID, sessionID string, questionIndex int) error {
	return s.handleTimeout(participantID, sessionID, questionIndex)
}
