// Command monitor follows a test's attempts live, for the teacher who wrote it.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/stemsi/examflow/internal/apiclient"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/identity"
	"github.com/stemsi/examflow/internal/logger"
	"github.com/stemsi/examflow/internal/model"
	"github.com/stemsi/examflow/internal/monitor"
	ws "github.com/stemsi/examflow/internal/websocket"
	"golang.org/x/term"
)

func main() {
	var testID int64
	flag.Int64Var(&testID, "test", 0, "Test ID to monitor (prompted when omitted)")
	flag.Parse()

	cfg := config.LoadClient()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := apiclient.New(cfg.APIBaseURL, log, apiclient.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid API base URL")
	}
	who := identity.New(client)
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Username: ")
	username, _ := reader.ReadString('\n')
	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading password")
		os.Exit(1)
	}

	user, err := who.Login(ctx, strings.TrimSpace(username), string(password))
	if err != nil {
		fmt.Println(apiclient.UserMessage(err))
		os.Exit(1)
	}
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = who.Logout(logoutCtx)
	}()
	if user.Role != model.RoleTeacher {
		fmt.Println("The live monitor is for teachers.")
		return
	}

	if testID == 0 {
		if testID, err = pickTest(ctx, client, reader); err != nil {
			fmt.Println(apiclient.UserMessage(err))
			return
		}
	}

	wsURL, err := monitor.URL(client.BaseURL(), testID)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot build monitor URL")
	}

	fmt.Printf("Watching test %d. Press Ctrl-C to stop.\n", testID)
	err = monitor.Stream(ctx, wsURL, client.Jar(), printFrame)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Monitor stream ended")
		os.Exit(1)
	}
}

func pickTest(ctx context.Context, client *apiclient.Client, reader *bufio.Reader) (int64, error) {
	tests, err := client.ListTests(ctx)
	if err != nil {
		return 0, err
	}
	if len(tests) == 0 {
		return 0, apiclient.MissingContext("pick test", "You have no tests yet. Create one with seed-test.")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPASSCODE\tOPEN\tCLOSE")
	for _, t := range tests {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Passcode,
			t.TimeOpen.Local().Format(time.DateTime), t.TimeClose.Local().Format(time.DateTime))
	}
	tw.Flush()

	fmt.Print("Test ID: ")
	line, _ := reader.ReadString('\n')
	id, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if err != nil || id <= 0 {
		return 0, apiclient.MissingContext("pick test", "Please enter a test ID from the list.")
	}
	return id, nil
}

func printFrame(f ws.Frame) error {
	switch f.Event {
	case ws.EventSnapshot:
		fmt.Printf("%d attempt(s) so far\n", len(f.Results))
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STUDENT\tUSERNAME\tSCORE\tSTARTED\tFINISHED")
		for _, r := range f.Results {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.StudentID, r.Username, score(r.TotalScore),
				r.StartTime.Local().Format(time.TimeOnly), finished(r.EndTime))
		}
		return tw.Flush()

	case ws.EventAttempt:
		if f.Attempt == nil {
			return nil
		}
		ev := f.Attempt
		line := fmt.Sprintf("%s  student %d  %s", ev.At.Local().Format(time.TimeOnly), ev.StudentID, ev.Type)
		switch ev.Type {
		case model.EventAnswered:
			line += fmt.Sprintf(" question %d", ev.QuestionID)
		case model.EventSubmitted, model.EventExpired:
			line += " score " + score(ev.TotalScore)
		}
		fmt.Println(line)

	case ws.EventError:
		return errors.New(f.Error)
	}
	return nil
}

func score(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func finished(t *time.Time) string {
	if t == nil {
		return "in progress"
	}
	return t.Local().Format(time.TimeOnly)
}
