package domain

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrResultNotFound    = errors.New("evaluation result not found")
	ErrNoQuestions       = errors.New("no questions available for role")
	ErrSessionFinished   = errors.New("session already finished")
	ErrRecorderBusy      = errors.New("audio capture already in progress")
	ErrCaptureFailed     = errors.New("audio capture unavailable")
	ErrTranscribeCeiling = errors.New("transcription polling ceiling reached")
)
