package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stemsi/examflow/internal/model"
)

// Login authenticates and stores the session cookie in the jar.
func (c *Client) Login(ctx context.Context, username, password string) (*model.LoginResponse, error) {
	const op = "login"
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, MissingContext(op, "Username and password are required.")
	}
	var out model.LoginResponse
	req := model.LoginRequest{Username: strings.TrimSpace(username), Password: password}
	if err := c.do(ctx, op, http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the server session and drops the local cookie.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, "logout", http.MethodPost, "/auth/logout", nil, nil)
	if c.http.Jar != nil {
		expired := &http.Cookie{Name: c.cookieName, Value: "", Path: "/", MaxAge: -1}
		c.http.Jar.SetCookies(c.base, []*http.Cookie{expired})
	}
	return err
}

// Me returns the logged-in account.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := c.do(ctx, "fetch profile", http.MethodGet, "/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolvePasscode looks a test up by its passcode.
func (c *Client) ResolvePasscode(ctx context.Context, passcode string) (*model.TestDescriptor, error) {
	const op = "resolve passcode"
	passcode = strings.TrimSpace(passcode)
	if passcode == "" {
		return nil, MissingContext(op, "Please enter a passcode.")
	}
	var out model.TestDescriptor
	if err := c.do(ctx, op, http.MethodGet, "/tests/passcode/"+url.PathEscape(passcode), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenResult asks the server to open a result record for (student, test).
func (c *Client) OpenResult(ctx context.Context, studentID, testID int64, start time.Time) error {
	const op = "open result"
	if err := requireID(op, "student", studentID); err != nil {
		return err
	}
	if err := requireID(op, "test", testID); err != nil {
		return err
	}
	body := model.OpenResultRequest{TestID: testID, StartTime: start.UTC()}
	return c.do(ctx, op, http.MethodPost, fmt.Sprintf("/students/%d/results", studentID), body, nil)
}

// FetchQuestions returns the ordered questions of a test.
func (c *Client) FetchQuestions(ctx context.Context, testID int64) ([]model.Question, error) {
	const op = "fetch questions"
	if err := requireID(op, "test", testID); err != nil {
		return nil, err
	}
	var out []model.Question
	if err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/tests/%d/questions", testID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetChoice records (overwrites) the selected answer for a question.
func (c *Client) SetChoice(ctx context.Context, studentID, questionID, answerID int64) error {
	const op = "set answer"
	if err := requireID(op, "student", studentID); err != nil {
		return err
	}
	if err := requireID(op, "question", questionID); err != nil {
		return err
	}
	if err := requireID(op, "answer", answerID); err != nil {
		return err
	}
	path := fmt.Sprintf("/students/%d/questions/%d/answers/%d", studentID, questionID, answerID)
	return c.do(ctx, op, http.MethodPut, path, nil, nil)
}

// SubmitText records a free-text response.
func (c *Client) SubmitText(ctx context.Context, studentID, questionID int64, text string) error {
	const op = "submit text answer"
	if err := requireID(op, "student", studentID); err != nil {
		return err
	}
	if err := requireID(op, "question", questionID); err != nil {
		return err
	}
	body := model.TextAnswerRequest{QuestionID: questionID, Answer: text}
	return c.do(ctx, op, http.MethodPost, fmt.Sprintf("/students/%d/answers", studentID), body, nil)
}

// FinalizeResult records the end time, closing the attempt.
func (c *Client) FinalizeResult(ctx context.Context, studentID, testID int64, end time.Time) error {
	const op = "finalize result"
	if err := requireID(op, "student", studentID); err != nil {
		return err
	}
	if err := requireID(op, "test", testID); err != nil {
		return err
	}
	body := model.FinalizeResultRequest{TestID: testID, EndTime: end.UTC()}
	return c.do(ctx, op, http.MethodPut, fmt.Sprintf("/students/%d/results", studentID), body, nil)
}

// FetchResult returns the denormalized result of the student's latest attempt.
func (c *Client) FetchResult(ctx context.Context, testID, studentID int64) (*model.ResultDetail, error) {
	const op = "fetch result"
	if err := requireID(op, "test", testID); err != nil {
		return nil, err
	}
	if err := requireID(op, "student", studentID); err != nil {
		return nil, err
	}
	var out model.ResultDetail
	path := fmt.Sprintf("/tests/%d/students/%d/results", testID, studentID)
	if err := c.do(ctx, op, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PastResults lists the student's attempts, newest first.
func (c *Client) PastResults(ctx context.Context, studentID int64) ([]model.PastResult, error) {
	const op = "fetch past results"
	if err := requireID(op, "student", studentID); err != nil {
		return nil, err
	}
	var out []model.PastResult
	if err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/students/%d/results", studentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTest creates a test with its questions (teacher only).
func (c *Client) CreateTest(ctx context.Context, req model.CreateTestRequest) (*model.TestDescriptor, error) {
	var out model.TestDescriptor
	if err := c.do(ctx, "create test", http.MethodPost, "/tests", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTests lists the logged-in teacher's tests.
func (c *Client) ListTests(ctx context.Context) ([]model.TestDescriptor, error) {
	var out []model.TestDescriptor
	if err := c.do(ctx, "list tests", http.MethodGet, "/tests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TestResults lists every attempt at a test (teacher only).
func (c *Client) TestResults(ctx context.Context, testID int64) ([]model.TestResultRow, error) {
	const op = "fetch test results"
	if err := requireID(op, "test", testID); err != nil {
		return nil, err
	}
	var out []model.TestResultRow
	if err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/tests/%d/results", testID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
