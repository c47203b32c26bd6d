package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// multipartOverhead is allowed on top of FRAME_MAX_BYTES for boundaries and part headers.
const multipartOverhead = 64 << 10

// ProctorHandler handles proctoring sessions, frame uploads and violation reports.
type ProctorHandler struct {
	proctorService *service.ProctorSessionService
	frameMaxBytes  int64
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(proctorService *service.ProctorSessionService, frameMaxBytes int64) *ProctorHandler {
	return &ProctorHandler{proctorService: proctorService, frameMaxBytes: frameMaxBytes}
}

// OpenSession godoc
// POST /api/v1/student/tests/:test_id/proctor-sessions
// Opens a proctoring session for an assigned student who has not submitted yet.
func (h *ProctorHandler) OpenSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	testID, ok := uuidParam(c, "test_id")
	if !ok {
		return
	}

	sess, err := h.proctorService.Open(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": sess})
}

// AnalyzeFrame godoc
// POST /api/v1/student/proctor-sessions/:session_id/frames
// Accepts one camera frame as multipart field "image" and returns the detector's result.
// The result is also pushed to the session's alert stream.
func (h *ProctorHandler) AnalyzeFrame(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID := c.Param("session_id")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.frameMaxBytes+multipartOverhead)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFrameTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFrameRequired)
		return
	}
	defer file.Close()

	if header.Size > h.frameMaxBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFrameTooLarge)
		return
	}

	frame, err := io.ReadAll(io.LimitReader(file, h.frameMaxBytes))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFrameRequired)
		return
	}

	result, err := h.proctorService.AnalyzeFrame(c.Request.Context(), sessionID, claims.UserID, frame)
	if err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ReportViolation godoc
// POST /api/v1/student/proctor-sessions/:session_id/violations
func (h *ProctorHandler) ReportViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.ViolationReportRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.proctorService.ReportViolation(c.Request.Context(), c.Param("session_id"), claims.UserID, req); err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// CloseSession godoc
// DELETE /api/v1/student/proctor-sessions/:session_id
func (h *ProctorHandler) CloseSession(c *gin.Context) {
	claims := middleware.GetClaims(c)

	if err := h.proctorService.Close(c.Request.Context(), c.Param("session_id"), claims.UserID); err != nil {
		response.FailError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
