package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/middleware"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/response"
	"github.com/stemsi/examflow/internal/service"
	"github.com/stemsi/examflow/internal/validator"
)

// TestHandler serves test lookup, question retrieval and teacher test management.
type TestHandler struct {
	testService    *service.TestService
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService, attemptService *service.AttemptService, log zerolog.Logger) *TestHandler {
	return &TestHandler{
		testService:    testService,
		attemptService: attemptService,
		log:            log.With().Str("component", "test_handler").Logger(),
	}
}

// ResolvePasscode godoc
// GET /tests/passcode/:passcode
// Returns the open test behind a passcode.
func (h *TestHandler) ResolvePasscode(c *gin.Context) {
	t, err := h.testService.ResolvePasscode(c.Request.Context(), c.Param("passcode"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrInvalidPasscode)
			return
		}
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, t)
}

// Questions godoc
// GET /tests/:testId/questions
// Students need an open attempt; teachers must author the test.
func (h *TestHandler) Questions(c *gin.Context) {
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
	var err error
	switch claims.Role {
	case model.RoleStudent:
		err = h.attemptService.RequireOpen(ctx, claims.UserID, testID)
	case model.RoleTeacher:
		_, err = h.testService.Authorize(ctx, testID, claims.UserID)
	default:
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}
	if err != nil {
		fail(c, h.log, err)
		return
	}

	questions, err := h.testService.Questions(ctx, testID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if questions == nil {
		questions = []model.Question{}
	}
	response.Success(c, http.StatusOK, questions)
}

// Create godoc
// POST /tests
// Creates a test with its questions and answers. An omitted passcode is generated.
func (h *TestHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateTestRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	t, err := h.testService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusCreated, t)
}

// List godoc
// GET /tests
// Lists the calling teacher's tests.
func (h *TestHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	tests, err := h.testService.ListByTeacher(c.Request.Context(), claims.UserID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if tests == nil {
		tests = []model.TestDescriptor{}
	}
	response.Success(c, http.StatusOK, tests)
}

// Results godoc
// GET /tests/:testId/results
// Lists every attempt at a test the calling teacher authored.
func (h *TestHandler) Results(c *gin.Context) {
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
	if _, err := h.testService.Authorize(ctx, testID, claims.UserID); err != nil {
		fail(c, h.log, err)
		return
	}

	rows, err := h.attemptService.TestResults(ctx, testID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if rows == nil {
		rows = []model.TestResultRow{}
	}
	response.Success(c, http.StatusOK, rows)
}
