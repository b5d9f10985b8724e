package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/examflow/internal/apiclient"
	"github.com/stemsi/examflow/internal/attempt"
	"github.com/stemsi/examflow/internal/model"
)

const sessionHelp = `Commands:
  l                 list questions
  v <n>             view question n
  a <n> <choice>    choose answer <choice> (1, 2, ...) for question n
  t <n> <text>      write a free-text answer for question n
  s                 submit
  r                 retry a failed submission
  time              show the time left
  ?                 this help
`

// warnAt are the time-left marks announced during the countdown.
var warnAt = []time.Duration{5 * time.Minute, time.Minute, 10 * time.Second}

// take runs one attempt until it is submitted or ctx ends.
func (a *app) take(ctx context.Context, session *model.TestSession, questions []model.Question) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	states := make(chan attempt.State, 4)
	paths := make(chan string, 1)
	var att *attempt.Attempt

	warned := len(warnAt)
	for i, w := range warnAt {
		if session.Remaining(time.Now()) > w {
			warned = i
			break
		}
	}

	att = attempt.New(*session, questions, a.client, attempt.Options{
		Clock:   attempt.SystemClock,
		Anchors: a.anchors,
		Logger:  a.log,
		Tick:    a.cfg.Tick,
		Quiet:   a.cfg.Debounce,
		Confirmer: attempt.ConfirmFunc(func(ctx context.Context, p attempt.Prompt) (bool, error) {
			ok, err := a.con.yes(ctx, att.Done(), p.Message())
			if errors.Is(err, errAborted) {
				return false, nil
			}
			return ok, err
		}),
		Navigator: attempt.NavigateFunc(func(path string) {
			select {
			case paths <- path:
			default:
			}
		}),
		OnTick: func(left time.Duration) {
			for warned < len(warnAt) && left <= warnAt[warned] {
				a.con.printf("\n** %s left **\n", formatLeft(left))
				warned++
			}
		},
		OnState: func(s attempt.State) {
			select {
			case states <- s:
			default:
			}
		},
	})

	runErr := make(chan error, 1)
	go func() { runErr <- att.Run(runCtx) }()

	a.con.printf("\n%s: %d questions, %s left. Type ? for help.\n", session.Title, len(questions), formatLeft(att.Remaining()))
	a.listQuestions(att)

	for {
		a.con.printf("> ")
		select {
		case <-ctx.Done():
			a.con.printf("\nYour attempt stays open on the server until the time runs out. Run take again to resume.\n")
			return ctx.Err()

		case path := <-paths:
			a.con.printf("\nSubmitted.\n")
			a.showResult(ctx, path)
			return nil

		case s := <-states:
			switch s {
			case attempt.Expired:
				a.con.printf("\nTime is up. Submitting your answers...\n")
			case attempt.SubmitFailed:
				a.con.printf("\nSubmission failed: %s\nType r to retry.\n", apiclient.UserMessage(att.Err()))
			}

		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Debug().Err(err).Msg("Countdown ended with error")
			}

		case line, ok := <-a.con.lines:
			if !ok {
				return errInputClosed
			}
			a.command(ctx, att, line)
		}
	}
}

func (a *app) command(ctx context.Context, att *attempt.Attempt, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "?", "help":
		a.con.printf("%s", sessionHelp)

	case "l", "list":
		a.listQuestions(att)

	case "time":
		a.con.printf("%s left, %d unanswered.\n", formatLeft(att.Remaining()), att.Unanswered())

	case "v", "view":
		q, ok := a.questionArg(att, fields)
		if ok {
			a.viewQuestion(att, q)
		}

	case "a", "answer":
		q, ok := a.questionArg(att, fields)
		if !ok {
			return
		}
		if q.Kind != model.KindChoice || len(fields) < 3 {
			a.con.printf("Usage: a <question> <choice> on a multiple-choice question.\n")
			return
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 1 || n > len(q.Answers) {
			a.con.printf("Choose a number between 1 and %d.\n", len(q.Answers))
			return
		}
		if err := att.Select(ctx, q.ID, q.Answers[n-1].ID); err != nil {
			a.con.printf("Not saved: %s\n", userMessage(err))
			return
		}
		a.con.printf("Saved.\n")

	case "t", "text":
		q, ok := a.questionArg(att, fields)
		if !ok {
			return
		}
		if q.Kind != model.KindFreeText {
			a.con.printf("Question %s takes a choice; use a.\n", fields[1])
			return
		}
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line[len(fields[0]):]), fields[1]))
		if err := att.Type(q.ID, text); err != nil {
			a.con.printf("Not saved: %s\n", userMessage(err))
		}

	case "s", "submit":
		err := att.Submit(ctx)
		switch {
		case err == nil, errors.Is(err, attempt.ErrDeclined):
		case errors.Is(err, attempt.ErrNotRunning):
			a.con.printf("Submission is already under way.\n")
		default:
			// SubmitFailed is reported through the state channel.
			a.log.Debug().Err(err).Msg("Submit failed")
		}

	case "r", "retry":
		if err := att.Retry(ctx); errors.Is(err, attempt.ErrNothingToRetry) {
			a.con.printf("There is no failed submission to retry.\n")
		}

	default:
		a.con.printf("Unknown command %q. Type ? for help.\n", fields[0])
	}
}

func (a *app) questionArg(att *attempt.Attempt, fields []string) (model.Question, bool) {
	qs := att.Questions()
	if len(fields) < 2 {
		a.con.printf("Which question? (1-%d)\n", len(qs))
		return model.Question{}, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(qs) {
		a.con.printf("Question numbers run from 1 to %d.\n", len(qs))
		return model.Question{}, false
	}
	return qs[n-1], true
}

func (a *app) listQuestions(att *attempt.Attempt) {
	rec := att.Recorder()
	for i, q := range att.Questions() {
		mark := " "
		if _, ok := rec.Selection(q.ID); ok || strings.TrimSpace(rec.Text(q.ID)) != "" {
			mark = "x"
		}
		a.con.printf("[%s] %2d. %s\n", mark, i+1, q.Content)
	}
}

func (a *app) viewQuestion(att *attempt.Attempt, q model.Question) {
	a.con.printf("%s (%s point(s))\n", q.Content, strconv.FormatFloat(q.Score, 'f', -1, 64))
	if q.Kind == model.KindFreeText {
		if text := att.Recorder().Text(q.ID); text != "" {
			a.con.printf("Your answer: %s\n", text)
		} else {
			a.con.printf("Free text. Answer with: t <n> <text>\n")
		}
		return
	}
	selected, hasSel := att.Recorder().Selection(q.ID)
	for i, ans := range q.Answers {
		mark := " "
		if hasSel && selected == ans.ID {
			mark = "*"
		}
		a.con.printf("  %s %d) %s\n", mark, i+1, ans.Content)
	}
}

// userMessage covers recorder errors, which are local, as well as API errors.
func userMessage(err error) string {
	switch {
	case errors.Is(err, attempt.ErrSealed):
		return "the attempt is being submitted."
	case errors.Is(err, attempt.ErrUnknownAnswer):
		return "that choice does not exist."
	}
	return apiclient.UserMessage(err)
}

func formatLeft(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d / time.Minute)
	s := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%02d:%02d", m, s)
}
