// Command account manages an examflow account from the terminal: sign up,
// view or edit the profile, change the password, or reset a forgotten one.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/apiclient"
	"github.com/stemsi/examflow/internal/config"
	"github.com/stemsi/examflow/internal/identity"
	"github.com/stemsi/examflow/internal/logger"
	"github.com/stemsi/examflow/internal/model"
	"golang.org/x/term"
)

type account struct {
	client *apiclient.Client
	who    *identity.Context
	log    zerolog.Logger
	in     *bufio.Reader
	out    io.Writer
	// secret reads a line without echo when stdin is a terminal.
	secret func(prompt string) (string, error)
}

func main() {
	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() != 1 {
		printUsage()
		os.Exit(2)
	}

	cfg := config.LoadClient()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := apiclient.New(cfg.APIBaseURL, log, apiclient.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid API base URL")
	}

	a := newAccount(client, log, os.Stdin, os.Stdout)
	if fd := int(syscall.Stdin); term.IsTerminal(fd) {
		a.secret = func(prompt string) (string, error) {
			fmt.Fprint(a.out, prompt)
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(a.out)
			return string(b), err
		}
	}

	if err := a.run(ctx, flag.Arg(0)); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, apiclient.UserMessage(err))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: account <command>

Commands:
  signup    create an account
  profile   show and edit your profile
  passwd    change your password
  reset     reset a forgotten password by email`)
}

func newAccount(client *apiclient.Client, log zerolog.Logger, in io.Reader, out io.Writer) *account {
	a := &account{
		client: client,
		who:    identity.New(client),
		log:    log,
		in:     bufio.NewReader(in),
		out:    out,
	}
	a.secret = a.readLine
	return a
}

func (a *account) run(ctx context.Context, cmd string) error {
	switch cmd {
	case "signup":
		return a.signup(ctx)
	case "profile":
		return a.withLogin(ctx, a.profile)
	case "passwd":
		return a.withLogin(ctx, a.passwd)
	case "reset":
		return a.reset(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *account) readLine(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// newPassword asks twice until both entries match.
func (a *account) newPassword(prompt string) (string, error) {
	for {
		pw, err := a.secret(prompt)
		if err != nil {
			return "", err
		}
		again, err := a.secret("Repeat: ")
		if err != nil {
			return "", err
		}
		if pw == again {
			return pw, nil
		}
		fmt.Fprintln(a.out, "The passwords do not match.")
	}
}

func (a *account) withLogin(ctx context.Context, fn func(context.Context, identity.User) error) error {
	username, err := a.readLine("Username: ")
	if err != nil {
		return err
	}
	password, err := a.secret("Password: ")
	if err != nil {
		return err
	}
	user, err := a.who.Login(ctx, username, password)
	if err != nil {
		return err
	}
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.who.Logout(logoutCtx); err != nil {
			a.log.Debug().Err(err).Msg("Logout failed")
		}
	}()
	return fn(ctx, user)
}

func (a *account) signup(ctx context.Context) error {
	var req model.SignupRequest
	var err error
	if req.Username, err = a.readLine("Username: "); err != nil {
		return err
	}
	if req.Password, err = a.newPassword("Password: "); err != nil {
		return err
	}
	role, err := a.readLine("Role (student/teacher, default student): ")
	if err != nil {
		return err
	}
	req.Role = model.RoleStudent
	if role != "" {
		req.Role = model.Role(strings.ToUpper(role))
	}
	if req.FullName, err = a.readLine("Full name (optional): "); err != nil {
		return err
	}
	if req.Email, err = a.readLine("Email, used for password resets (optional): "); err != nil {
		return err
	}

	user, err := a.client.Signup(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Account %q created. You can log in now.\n", user.Username)
	return nil
}

func (a *account) profile(ctx context.Context, who identity.User) error {
	u, err := a.client.Profile(ctx, who.ID)
	if err != nil {
		return err
	}
	email := ""
	if u.Email != nil {
		email = *u.Email
	}
	fmt.Fprintf(a.out, "\nUsername:      %s\nRole:          %s\nFull name:     %s\nEmail:         %s\nDate of birth: %s\n\n",
		u.Username, strings.ToLower(string(u.Role)), u.FullName, email, u.DateOfBirth)

	edit, err := a.readLine("Edit? [y/N] ")
	if err != nil || !strings.EqualFold(edit, "y") {
		return err
	}

	req := model.UpdateProfileRequest{FullName: u.FullName, Email: email, DateOfBirth: u.DateOfBirth}
	fields := []struct {
		label string
		dst   *string
	}{
		{"Full name", &req.FullName},
		{"Email", &req.Email},
		{"Date of birth (YYYY-MM-DD)", &req.DateOfBirth},
	}
	for _, f := range fields {
		v, err := a.readLine(fmt.Sprintf("%s [%s, - to clear]: ", f.label, *f.dst))
		if err != nil {
			return err
		}
		switch v {
		case "":
		case "-":
			*f.dst = ""
		default:
			*f.dst = v
		}
	}

	if _, err := a.client.UpdateProfile(ctx, who.ID, req); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Profile saved.")
	return nil
}

func (a *account) passwd(ctx context.Context, _ identity.User) error {
	old, err := a.secret("Current password: ")
	if err != nil {
		return err
	}
	pw, err := a.newPassword("New password: ")
	if err != nil {
		return err
	}
	if err := a.client.ChangePassword(ctx, old, pw); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed.")
	return nil
}

// reset mails a code, lets the user resend it, and sets the new password
// once the code is accepted.
func (a *account) reset(ctx context.Context) error {
	email, err := a.readLine("Email: ")
	if err != nil {
		return err
	}
	if err := a.client.RequestPasswordReset(ctx, email); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "If the address is registered, a code is on its way.")

	var token string
	for token == "" {
		code, err := a.readLine("Code (r to resend): ")
		if err != nil {
			return err
		}
		if strings.EqualFold(code, "r") {
			err = a.client.RequestPasswordReset(ctx, email)
			if err == nil {
				fmt.Fprintln(a.out, "A new code is on its way.")
			}
		} else {
			token, err = a.client.VerifyResetCode(ctx, email, code)
		}
		if err != nil {
			if apiclient.KindOf(err) == apiclient.KindTransport {
				return err
			}
			fmt.Fprintln(a.out, apiclient.UserMessage(err))
		}
	}

	pw, err := a.newPassword("New password: ")
	if err != nil {
		return err
	}
	if err := a.client.ConfirmPasswordReset(ctx, token, pw); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password updated. You can log in now.")
	return nil
}
