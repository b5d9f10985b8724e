package attempt

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/anchor"
	"github.com/stemsi/examflow/internal/apiclient"
	"github.com/stemsi/examflow/internal/model"
)

// Starter turns a resolved test into a running session.
type Starter struct {
	opener  Opener
	anchors anchor.Store
	clock   Clock
	log     zerolog.Logger
}

// NewStarter creates a Starter. anchors may be nil, disabling resume.
func NewStarter(opener Opener, anchors anchor.Store, clock Clock, log zerolog.Logger) *Starter {
	if clock == nil {
		clock = SystemClock
	}
	return &Starter{
		opener:  opener,
		anchors: anchors,
		clock:   clock,
		log:     log.With().Str("component", "starter").Logger(),
	}
}

// Start anchors the session at now and opens the result record. If an anchor
// for (student, test) already exists it is resumed and no record is opened.
func (s *Starter) Start(ctx context.Context, studentID int64, desc *model.TestDescriptor) (*model.TestSession, error) {
	const op = "start session"
	if studentID <= 0 {
		return nil, apiclient.MissingContext(op, "You must be logged in to start a test.")
	}
	if desc == nil || desc.ID <= 0 {
		return nil, apiclient.MissingContext(op, "No test is selected.")
	}
	if desc.DurationMinutes <= 0 {
		return nil, &apiclient.Error{Kind: apiclient.KindApplication, Op: op, Message: "This test has no time allotted."}
	}

	if s.anchors != nil {
		existing, err := s.anchors.Load(ctx, studentID, desc.ID)
		switch {
		case err == nil:
			s.log.Info().
				Int64("test_id", desc.ID).
				Time("end_time", existing.EndTime).
				Msg("Resuming anchored session")
			return existing, nil
		case !errors.Is(err, anchor.ErrNotFound):
			s.log.Warn().Err(err).Msg("Anchor lookup failed, starting fresh")
		}
	}

	start := s.clock.Now()
	session := &model.TestSession{
		TestID:        desc.ID,
		StudentID:     studentID,
		Title:         desc.Title,
		Passcode:      desc.Passcode,
		QuestionCount: desc.QuestionCount,
		StartTime:     start,
		EndTime:       start.Add(desc.Duration()),
	}

	if err := s.opener.OpenResult(ctx, studentID, desc.ID, start); err != nil {
		return nil, err
	}

	if s.anchors != nil {
		if err := s.anchors.Save(ctx, *session); err != nil {
			s.log.Warn().Err(err).Msg("Failed to persist session anchor")
		}
	}

	s.log.Info().
		Int64("test_id", desc.ID).
		Time("start_time", session.StartTime).
		Time("end_time", session.EndTime).
		Msg("Session started")
	return session, nil
}
