package service

import "errors"

// Sentinel errors mapped to response codes by the handlers.
var (
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrEmailTaken              = errors.New("email already registered")
	ErrUserNotFound            = errors.New("user not found")
	ErrStudentNotFound         = errors.New("student not found")
	ErrTestNotFound            = errors.New("test not found")
	ErrNotTestOwner            = errors.New("test belongs to another teacher")
	ErrNotAssigned             = errors.New("not authorized to submit")
	ErrAlreadySubmitted        = errors.New("you have already submitted this test")
	ErrIncompleteAnswers       = errors.New("please answer all questions")
	ErrInvalidAnswers          = errors.New("answers do not match the test questions")
	ErrSessionNotFound         = errors.New("proctoring session not found")
	ErrSessionForbidden        = errors.New("proctoring session belongs to another student")
	ErrFaceDetectorUnavailable = errors.New("face detector unavailable")
	ErrInvalidFrame            = errors.New("invalid frame")
)
