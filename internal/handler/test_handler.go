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

// TestHandler handles the teacher's test authoring and roster endpoints.
type TestHandler struct {
	testService *service.TestService
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService) *TestHandler {
	return &TestHandler{testService: testService}
}

// CreateTest godoc
// POST /api/v1/teacher/tests
func (h *TestHandler) CreateTest(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"test": test})
}

// ListTests godoc
// GET /api/v1/teacher/tests
// Returns the teacher's tests with their rosters and submissions.
func (h *TestHandler) ListTests(c *gin.Context) {
	claims := middleware.GetClaims(c)

	tests, err := h.testService.ListForTeacher(c.Request.Context(), claims.UserID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tests": tests})
}

// AssignStudent godoc
// POST /api/v1/teacher/tests/:id/assign
func (h *TestHandler) AssignStudent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.AssignStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.AssignStudent(c.Request.Context(), claims.UserID, testID, req.StudentEmail)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// ListStudents godoc
// GET /api/v1/teacher/students
func (h *TestHandler) ListStudents(c *gin.Context) {
	students, err := h.testService.ListStudents(c.Request.Context())
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"students": students})
}
