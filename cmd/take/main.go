// Command take is the student terminal client: log in, join a test by
// passcode, answer against the clock and read the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/anchor"
	"github.com/stemsi/examflow/internal/apiclient"
	"github.com/stemsi/examflow/internal/attempt"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/database"
	"github.com/stemsi/examflow/internal/identity"
	"github.com/stemsi/examflow/internal/logger"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/result"
)

// anchorGrace keeps an anchor around briefly after its deadline so a
// restarted client still finds it and submits.
const anchorGrace = 10 * time.Minute

type app struct {
	cfg     *config.ClientConfig
	log     zerolog.Logger
	client  *apiclient.Client
	who     *identity.Context
	anchors anchor.Store
	con     *console
}

func main() {
	cfg := config.LoadClient()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := apiclient.New(cfg.APIBaseURL, log, apiclient.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid API base URL")
	}

	var anchors anchor.Store = anchor.NewMemoryStore(anchorGrace, nil)
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn().Err(err).Msg("Anchor store unavailable, sessions will not survive a restart")
		} else {
			defer rdb.Close()
			anchors = anchor.NewRedisStore(rdb, anchorGrace)
		}
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		client:  client,
		who:     identity.New(client),
		anchors: anchors,
		con:     newStdConsole(),
	}
	if err := a.run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errInputClosed) {
		fmt.Fprintln(os.Stderr, apiclient.UserMessage(err))
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context) error {
	user, err := a.login(ctx)
	if err != nil {
		return err
	}
	defer func() {
		// Logout must still reach the server after Ctrl-C.
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.who.Logout(logoutCtx); err != nil {
			a.log.Debug().Err(err).Msg("Logout failed")
		}
	}()

	if user.Role != model.RoleStudent {
		return &apiclient.Error{Kind: apiclient.KindApplication, Op: "login", Message: "This client is for students. Teachers can use the monitor command."}
	}
	a.con.printf("Welcome, %s.\n", user.Username)

	a.con.start()
	for {
		choice, err := a.con.ask(ctx, nil, "\n[j] join a test  [h] past results  [q] quit\n> ")
		if err != nil {
			return err
		}
		switch strings.ToLower(choice) {
		case "j", "join":
			if err := a.join(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, errInputClosed) {
					return err
				}
				a.con.printf("%s\n", apiclient.UserMessage(err))
			}
		case "h", "history":
			a.history(ctx)
		case "q", "quit", "exit":
			return nil
		}
	}
}

func (a *app) login(ctx context.Context) (identity.User, error) {
	username, err := a.con.readLine("Username: ")
	if err != nil {
		return identity.User{}, err
	}
	password, err := a.con.readPassword("Password: ")
	if err != nil {
		return identity.User{}, err
	}
	return a.who.Login(ctx, username, password)
}

func (a *app) history(ctx context.Context) {
	studentID, err := a.who.StudentID()
	if err != nil {
		a.con.printf("%s\n", apiclient.UserMessage(err))
		return
	}
	rows, err := a.client.PastResults(ctx, studentID)
	if err != nil {
		a.con.printf("%s\n", apiclient.UserMessage(err))
		return
	}
	if len(rows) == 0 {
		a.con.printf("No past results yet.\n")
		return
	}
	_ = result.RenderHistory(a.con.out, rows)
}

// join resolves a passcode, starts (or resumes) the session and runs it.
func (a *app) join(ctx context.Context) error {
	studentID, err := a.who.StudentID()
	if err != nil {
		return err
	}

	passcode, err := a.con.ask(ctx, nil, "Passcode: ")
	if err != nil {
		return err
	}
	desc, err := a.client.ResolvePasscode(ctx, passcode)
	if err != nil {
		return err
	}

	a.con.printf("\n%s\n", desc.Title)
	if desc.Description != "" {
		a.con.printf("%s\n", desc.Description)
	}
	a.con.printf("%d questions, %d minute(s). The timer starts when you begin.\n", desc.QuestionCount, desc.DurationMinutes)
	ok, err := a.con.yes(ctx, nil, "Begin now?")
	if err != nil || !ok {
		return err
	}

	starter := attempt.NewStarter(a.client, a.anchors, attempt.SystemClock, a.log)
	session, err := starter.Start(ctx, studentID, desc)
	if err != nil {
		return err
	}

	questions, err := a.fetchQuestions(ctx, session.TestID)
	if err != nil {
		return err
	}
	return a.take(ctx, session, questions)
}

// fetchQuestions offers a retry on failure; the countdown is already running.
func (a *app) fetchQuestions(ctx context.Context, testID int64) ([]model.Question, error) {
	for {
		questions, err := a.client.FetchQuestions(ctx, testID)
		if err == nil {
			return questions, nil
		}
		a.con.printf("%s\n", apiclient.UserMessage(err))
		retry, askErr := a.con.yes(ctx, nil, "Try loading the questions again?")
		if askErr != nil {
			return nil, askErr
		}
		if !retry {
			return nil, err
		}
	}
}

func (a *app) showResult(ctx context.Context, path string) {
	var testID int64
	if _, err := fmt.Sscanf(path, "/student/results/%d", &testID); err != nil {
		a.log.Warn().Str("path", path).Msg("Unknown navigation target")
		return
	}
	studentID, err := a.who.StudentID()
	if err != nil {
		a.con.printf("%s\n", apiclient.UserMessage(err))
		return
	}

	detail, err := a.client.FetchResult(ctx, testID, studentID)
	if err != nil {
		a.con.printf("Your answers were submitted, but the result could not be loaded: %s\n", apiclient.UserMessage(err))
		return
	}
	a.con.printf("\n")
	_ = result.Render(a.con.out, result.Resolve(detail))
}
