// Package result resolves and renders the post-submission view of an attempt.
package result

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/stemsi/examflow/internal/model"
)

const (
	NotAnswered = "Not answered"
	NoCorrect   = "None"
)

// Line is one resolved question.
type Line struct {
	Number   int
	Question string
	Kind     model.QuestionKind
	Score    float64
	Chosen   string
	Correct  string
	// IsCorrect is the indicator shown next to a choice question.
	IsCorrect bool
}

// Sheet is a fully resolved result ready for display.
type Sheet struct {
	Title      string
	TotalScore *float64
	MaxScore   float64
	StartTime  time.Time
	EndTime    *time.Time
	Lines      []Line
}

// Resolve matches each question's chosen answer id against its answers.
func Resolve(d *model.ResultDetail) Sheet {
	s := Sheet{
		Title:      d.Title,
		TotalScore: d.Result.TotalScore,
		StartTime:  d.Result.StartTime,
		EndTime:    d.Result.EndTime,
		Lines:      make([]Line, 0, len(d.Questions)),
	}

	for i, q := range d.Questions {
		s.MaxScore += q.Score
		line := Line{
			Number:   i + 1,
			Question: q.Content,
			Kind:     q.Kind,
			Score:    q.Score,
			Chosen:   NotAnswered,
			Correct:  NoCorrect,
		}

		if q.Kind == model.KindFreeText || (q.Kind == "" && len(q.Answers) == 0) {
			// Free text is not graded.
			line.Kind = model.KindFreeText
			if q.AnswerContent != "" {
				line.Chosen = q.AnswerContent
			}
			line.Correct = "-"
			s.Lines = append(s.Lines, line)
			continue
		}

		for _, a := range q.Answers {
			if q.AnswerID != nil && a.ID == *q.AnswerID {
				line.Chosen = a.Content
				line.IsCorrect = a.IsCorrect
			}
			if a.IsCorrect && line.Correct == NoCorrect {
				line.Correct = a.Content
			}
		}
		s.Lines = append(s.Lines, line)
	}
	return s
}

func indicator(l Line) string {
	if l.Kind == model.KindFreeText {
		return "-"
	}
	if l.IsCorrect {
		return "correct"
	}
	return "incorrect"
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Render writes s as a table.
func Render(w io.Writer, s Sheet) error {
	total := "-"
	if s.TotalScore != nil {
		total = formatScore(*s.TotalScore)
	}
	end := "-"
	if s.EndTime != nil {
		end = s.EndTime.Local().Format(time.DateTime)
	}

	if _, err := fmt.Fprintf(w, "%s\nScore: %s / %s\nStarted: %s\nFinished: %s\n\n",
		s.Title, total, formatScore(s.MaxScore), s.StartTime.Local().Format(time.DateTime), end); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tQUESTION\tYOUR ANSWER\tCORRECT ANSWER\tRESULT")
	for _, l := range s.Lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", l.Number, l.Question, l.Chosen, l.Correct, indicator(l))
	}
	return tw.Flush()
}

// RenderHistory writes a student's past attempts.
func RenderHistory(w io.Writer, rows []model.PastResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEST\tTITLE\tSCORE\tSTARTED\tFINISHED")
	for _, r := range rows {
		score, end := "-", "in progress"
		if r.TotalScore != nil {
			score = formatScore(*r.TotalScore)
		}
		if r.EndTime != nil {
			end = r.EndTime.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.TestID, r.Title, score, r.StartTime.Local().Format(time.DateTime), end)
	}
	return tw.Flush()
}
