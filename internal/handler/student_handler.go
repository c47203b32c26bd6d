package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// StudentHandler handles the student's test list, paper and submission endpoints.
type StudentHandler struct {
	testService       *service.TestService
	submissionService *service.SubmissionService
	proctorService    *service.ProctorSessionService
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(
	testService *service.TestService,
	submissionService *service.SubmissionService,
	proctorService *service.ProctorSessionService,
) *StudentHandler {
	return &StudentHandler{
		testService:       testService,
		submissionService: submissionService,
		proctorService:    proctorService,
	}
}

// GetAssignedTests godoc
// GET /api/v1/student/tests
func (h *StudentHandler) GetAssignedTests(c *gin.Context) {
	claims := middleware.GetClaims(c)

	papers, err := h.testService.GetAssignedTests(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tests": papers})
}

// GetTest godoc
// GET /api/v1/student/tests/:test_id
func (h *StudentHandler) GetTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := uuidParam(c, "test_id")
	if !ok {
		return
	}

	paper, err := h.testService.GetPaper(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": paper})
}

// SubmitTest godoc
// POST /api/v1/student/tests/:test_id/submit
// The student is always the token's subject. force=true marks a submission
// forced by the proctoring client and accepts unanswered questions.
func (h *StudentHandler) SubmitTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := uuidParam(c, "test_id")
	if !ok {
		return
	}

	var req model.SubmitTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.submissionService.Submit(c.Request.Context(), service.SubmitInput{
		TestID:    testID,
		StudentID: claims.UserID,
		Answers:   req.Answers,
		WasPasted: req.WasPasted,
		Force:     req.Force,
	})
	if err != nil {
		response.FailError(c, err)
		return
	}

	h.proctorService.NotifySubmitted(c.Request.Context(), testID, claims.UserID)

	response.Success(c, http.StatusCreated, gin.H{
		"submission": gin.H{
			"id":           sub.ID,
			"test_id":      sub.TestID,
			"submitted_at": sub.SubmittedAt,
			"forced":       sub.Forced,
		},
	})
}
