package repository

import "errors"

var (
	ErrNotFound            = errors.New("record not found")
	ErrDuplicateSubmission = errors.New("submission already exists for this student")
	ErrNotAssigned         = errors.New("student is not assigned to this test")
	ErrEmailTaken          = errors.New("user with this email already exists")
)
