package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Skotchmaster/laundry_pos/internal/app"
	"github.com/Skotchmaster/laundry_pos/internal/authclient"
	"github.com/Skotchmaster/laundry_pos/internal/authhttp"
	"github.com/Skotchmaster/laundry_pos/internal/config"
	"github.com/Skotchmaster/laundry_pos/internal/logging"
	"github.com/Skotchmaster/laundry_pos/internal/service"
	"github.com/Skotchmaster/laundry_pos/internal/session"
)

const usage = `usage: laundryctl <command> [args]

commands:
  login -u <username> [-p <password>]
  logout
  whoami
  lang [en|ar]
  watch
  get|post|put|patch|delete <path> [json-body]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fatal(err)
	}
	logger := logging.New(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	ended := make(chan string, 1)
	prompt := make(chan time.Time, 1)
	a, err := app.New(ctx, cfg, logger, app.Options{
		Navigator: service.NavigatorFunc(func(reason string) {
			fmt.Fprintf(os.Stderr, "session ended (%s); run `laundryctl login`\n", reason)
			select {
			case ended <- reason:
			default:
			}
		}),
		OnWarning: func(exp time.Time) {
			select {
			case prompt <- exp:
			default:
			}
		},
	})
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "login":
		err = login(ctx, a, args)
	case "logout":
		err = a.Session.SignOut(ctx)
	case "whoami":
		whoami(ctx, a)
	case "lang":
		err = lang(ctx, a, args)
	case "watch":
		err = watch(ctx, a, prompt, ended)
	case "get", "post", "put", "patch", "delete":
		err = request(ctx, a, strings.ToUpper(cmd), args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		a.Close()
		fatal(err)
	}
}

func login(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("login: -u is required")
	}
	if *password == "" {
		fmt.Fprint(os.Stderr, "password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		*password = strings.TrimSpace(line)
	}

	err := a.Session.Login(ctx, *username, *password)
	switch {
	case errors.Is(err, authclient.ErrInvalidCredentials):
		return errors.New("invalid credentials")
	case errors.Is(err, service.ErrUserDetails):
		fmt.Fprintln(os.Stderr, "logged in, but fetching user details failed")
		return nil
	case err != nil:
		return err
	}
	fmt.Println("logged in as", *username)
	return nil
}

func whoami(ctx context.Context, a *app.App) {
	printIdentity(os.Stdout, a.Store.Get(ctx), a.Store.Language(ctx))
}

func printIdentity(w io.Writer, sess session.Session, lang session.Language) {
	if !sess.Authenticated() {
		fmt.Fprintln(w, "not logged in")
		return
	}
	admin := "no"
	if sess.HasAnyRole(session.AdminRoles...) {
		admin = "yes"
	}
	fmt.Fprintf(w, "username: %s\nrole:     %s\nadmin:    %s\nexpires:  %s\nlanguage: %s (%s)\n",
		sess.Username, sess.Role, admin, sess.AccessExpiresAt.Format(time.RFC3339), lang, lang.Direction())
}

func lang(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		l := a.Store.Language(ctx)
		fmt.Printf("%s (%s)\n", l, l.Direction())
		return nil
	}
	l, err := session.ParseLanguage(args[0])
	if err != nil {
		return err
	}
	return a.Store.SetLanguage(ctx, l)
}

// watch keeps the session alive in the foreground and asks the operator
// what to do when the expiry warning fires.
func watch(ctx context.Context, a *app.App, prompt <-chan time.Time, ended <-chan string) error {
	sess := a.Session.Resume(ctx)
	if !sess.Authenticated() {
		return errors.New("not logged in")
	}
	select {
	case <-ended:
		return nil
	default:
	}
	fmt.Fprintf(os.Stderr, "watching session of %s, expires %s\n", sess.Username, sess.AccessExpiresAt.Format(time.RFC3339))

	return answerWarnings(ctx, a.Session, prompt, readAnswers(os.Stdin), ended, os.Stderr)
}

// sessionControl is the part of the session service the warning prompt drives.
type sessionControl interface {
	Renew(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// readAnswers yields normalised lines from r until it is exhausted.
func readAnswers(r io.Reader) <-chan string {
	answers := make(chan string)
	go func() {
		defer close(answers)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			answers <- strings.TrimSpace(strings.ToLower(sc.Text()))
		}
	}()
	return answers
}

// answerWarnings renews on "y" and signs out on any other answer, including
// end of input. It returns when the session ends or ctx is done.
func answerWarnings(ctx context.Context, s sessionControl, prompt <-chan time.Time, answers <-chan string, ended <-chan string, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return nil
		case exp := <-prompt:
			fmt.Fprintf(w, "session expires at %s. renew? [y/N] ", exp.Format(time.Kitchen))
			var answer string
			select {
			case answer = <-answers:
			case <-ended:
				return nil
			case <-ctx.Done():
				return nil
			}
			if answer == "y" || answer == "yes" {
				if err := s.Renew(ctx); err != nil {
					return err
				}
				fmt.Fprintln(w, "session renewed")
				continue
			}
			return s.SignOut(ctx)
		}
	}
}

func request(ctx context.Context, a *app.App, method string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s: path is required", strings.ToLower(method))
	}
	body, err := requestBody(args[1:])
	if err != nil {
		return err
	}

	var out json.RawMessage
	err = a.API.Do(ctx, method, args[0], nil, body, &out)
	if err != nil {
		return describeFailure(method, args[0], err)
	}
	return printJSON(os.Stdout, out)
}

// requestBody turns the optional command-line body into a value api.Client
// sends unchanged.
func requestBody(args []string) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if !json.Valid([]byte(args[0])) {
		return nil, errors.New("body is not valid JSON")
	}
	return json.RawMessage(args[0]), nil
}

func describeFailure(method, path string, err error) error {
	var rf *authhttp.RequestFailedError
	if errors.As(err, &rf) {
		return fmt.Errorf("%s %s: %d %s: %s", method, path, rf.Status, http.StatusText(rf.Status), rf.Body)
	}
	return err
}

func printJSON(w io.Writer, out json.RawMessage) error {
	if len(out) == 0 {
		return nil
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(pretty))
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "laundryctl:", err)
	os.Exit(1)
}
