package response

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-proctor/internal/service"
)

var serviceErrors = []struct {
	err    error
	status int
	code   ErrCode
}{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, ErrInvalidCredentials},
	{service.ErrEmailTaken, http.StatusConflict, ErrEmailTaken},
	{service.ErrUserNotFound, http.StatusNotFound, ErrNotFound},
	{service.ErrStudentNotFound, http.StatusNotFound, ErrStudentNotFound},
	{service.ErrTestNotFound, http.StatusNotFound, ErrTestNotFound},
	{service.ErrNotTestOwner, http.StatusForbidden, ErrNotTestOwner},
	{service.ErrNotAssigned, http.StatusForbidden, ErrNotAuthorizedToSubmit},
	{service.ErrAlreadySubmitted, http.StatusConflict, ErrAlreadySubmitted},
	{service.ErrIncompleteAnswers, http.StatusBadRequest, ErrIncompleteAnswers},
	{service.ErrInvalidAnswers, http.StatusBadRequest, ErrInvalidAnswers},
	{service.ErrSessionNotFound, http.StatusNotFound, ErrSessionNotFound},
	{service.ErrSessionForbidden, http.StatusForbidden, ErrForbidden},
	{service.ErrInvalidFrame, http.StatusBadRequest, ErrFrameRequired},
	{service.ErrFaceDetectorUnavailable, http.StatusServiceUnavailable, ErrFaceDetectorUnavailable},
}

// StatusOf returns the HTTP status and error code for a service error.
func StatusOf(err error) (int, ErrCode) {
	for _, e := range serviceErrors {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, ErrInternal
}
