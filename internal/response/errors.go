package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrEmailTaken         ErrCode = "EMAIL_TAKEN"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrStudentNotFound ErrCode = "STUDENT_NOT_FOUND"
	ErrNotTestOwner    ErrCode = "NOT_TEST_OWNER"

	// ─── Submission ────────────────────────────────────────────────────
	ErrTestNotFound          ErrCode = "TEST_NOT_FOUND"
	ErrNotAuthorizedToSubmit ErrCode = "NOT_AUTHORIZED_TO_SUBMIT"
	ErrAlreadySubmitted      ErrCode = "ALREADY_SUBMITTED"
	ErrIncompleteAnswers     ErrCode = "INCOMPLETE_ANSWERS"
	ErrInvalidAnswers        ErrCode = "INVALID_ANSWERS"

	// ─── Proctoring ────────────────────────────────────────────────────
	ErrSessionNotFound         ErrCode = "SESSION_NOT_FOUND"
	ErrFrameRequired           ErrCode = "FRAME_REQUIRED"
	ErrFrameTooLarge           ErrCode = "FRAME_TOO_LARGE"
	ErrFaceDetectorUnavailable ErrCode = "FACE_DETECTOR_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrEmailTaken:
		return "An account with this email already exists."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request body."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrStudentNotFound:
		return "Student not found."
	case ErrNotTestOwner:
		return "This test belongs to another teacher."

	// ─── Submission ────────────────────────────────────────────────────
	case ErrTestNotFound:
		return "Test not found."
	case ErrNotAuthorizedToSubmit:
		return "Not authorized to submit"
	case ErrAlreadySubmitted:
		return "You have already submitted this test"
	case ErrIncompleteAnswers:
		return "Please answer all questions"
	case ErrInvalidAnswers:
		return "Answers do not match the questions of this test."

	// ─── Proctoring ────────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Proctoring session not found or expired."
	case ErrFrameRequired:
		return "A camera frame is required."
	case ErrFrameTooLarge:
		return "Camera frame is too large."
	case ErrFaceDetectorUnavailable:
		return "Error detecting faces"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please slow down."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."

	default:
		return "An unknown error occurred."
	}
}
