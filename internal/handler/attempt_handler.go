package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/service"
	"github.com/stemsi/examflow/internal/validator"
)

// AttemptHandler serves the student attempt lifecycle: open, answer, finalize,
// and the result views.
type AttemptHandler struct {
	attemptService *service.AttemptService
	testService    *service.TestService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, testService *service.TestService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		testService:    testService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// Routes below sit behind RequireSelf("studentId"), which has already
// validated the parameter.
func studentParam(c *gin.Context) int64 {
	id, _ := validator.ParamID(c, "studentId")
	return id
}

// Open godoc
// POST /students/:studentId/results
// Opens the attempt, or returns the one already open.
func (h *AttemptHandler) Open(c *gin.Context) {
	var req model.OpenResultRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rec, err := h.attemptService.Open(c.Request.Context(), studentParam(c), req.TestID, req.StartTime)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, rec)
}

// SetChoice godoc
// PUT /students/:studentId/questions/:questionId/answers/:answerId
// Overwrites the student's choice for a question.
func (h *AttemptHandler) SetChoice(c *gin.Context) {
	questionID, ok := validator.ParamID(c, "questionId")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	answerID, ok := validator.ParamID(c, "answerId")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.attemptService.SetChoice(c.Request.Context(), studentParam(c), questionID, answerID); err != nil {
		fail(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, "Answer saved.")
}

// SubmitText godoc
// POST /students/:studentId/answers
// Overwrites the student's free-text response.
func (h *AttemptHandler) SubmitText(c *gin.Context) {
	var req model.TextAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SetText(c.Request.Context(), studentParam(c), req.QuestionID, req.Answer); err != nil {
		fail(c, h.log, err)
		return
	}
	response.OK(c, http.StatusOK, "Answer saved.")
}

// Finalize godoc
// PUT /students/:studentId/results
// Closes and scores the attempt. Repeating it returns the stored record.
func (h *AttemptHandler) Finalize(c *gin.Context) {
	var req model.FinalizeResultRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rec, err := h.attemptService.Finalize(c.Request.Context(), studentParam(c), req.TestID, req.EndTime)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, rec)
}

// Detail godoc
// GET /tests/:testId/students/:studentId/results
// Students see their own result; teachers see results of tests they authored.
func (h *AttemptHandler) Detail(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	testID, ok := validator.ParamID(c, "testId")
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ctx := c.Request.Context()
	if claims.Role == model.RoleTeacher {
		if _, err := h.testService.Authorize(ctx, testID, claims.UserID); err != nil {
			fail(c, h.log, err)
			return
		}
	}

	detail, err := h.attemptService.Detail(ctx, testID, studentParam(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// PastResults godoc
// GET /students/:studentId/results
func (h *AttemptHandler) PastResults(c *gin.Context) {
	rows, err := h.attemptService.PastResults(c.Request.Context(), studentParam(c))
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if rows == nil {
		rows = []model.PastResult{}
	}
	response.Success(c, http.StatusOK, rows)
}
