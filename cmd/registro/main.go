// registro registers attendance against the attendance endpoint from a
// terminal. Without a command it opens the interactive screens.
//
//	registro [--config file] [command] [flags]
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/puce/registro/internal/attendance"
	"github.com/puce/registro/internal/config"
	"github.com/puce/registro/internal/desk"
	"github.com/puce/registro/internal/logging"
	"github.com/puce/registro/internal/remote"
	"github.com/puce/registro/internal/session"
	"github.com/puce/registro/internal/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %s\n", attendance.Message(err))
		os.Exit(1)
	}
}

type app struct {
	desk   *desk.Desk
	in     *bufio.Reader
	out    io.Writer
	logger *slog.Logger
}

func run(args []string) error {
	var configPath, logLevel string

	flagSet := pflag.NewFlagSet("registro", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file")
	flagSet.StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	flagSet.Usage = func() { printHelp(flagSet) }
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	command := "ui"
	rest := flagSet.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	logger := logging.NewText(cfg.LogLevel, os.Stderr)
	if command == "ui" {
		// The terminal belongs to the screens.
		logger = logging.Discard()
	}

	client, err := remote.New(remote.Options{
		Endpoint: cfg.Endpoint,
		Relay:    remote.RelayFor(cfg.Relay),
		Timeout:  cfg.RequestTimeout,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	workflows, err := desk.New(desk.Options{
		Remote: client,
		Store:  session.NewFileStore(cfg.SessionDir),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{desk: workflows, in: bufio.NewReader(os.Stdin), out: os.Stdout, logger: logger}
	switch command {
	case "ui":
		return a.ui(ctx)
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.desk.Logout(ctx, session.DeviceKey)
	case "whoami":
		return a.whoami(ctx)
	case "users":
		return a.users(ctx)
	case "register":
		return a.register(ctx)
	case "history":
		return a.history(ctx, rest)
	case "help":
		printHelp(flagSet)
		return nil
	}
	printHelp(flagSet)
	return fmt.Errorf("unknown command %q", command)
}

func (a *app) ui(ctx context.Context) error {
	model := tui.NewModel(tui.Options{Context: ctx, Desk: a.desk})
	_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *app) login(ctx context.Context, args []string) error {
	var username string
	flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
	flagSet.StringVarP(&username, "user", "u", "", "username (prompted when empty)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if username == "" {
		var err error
		if username, err = a.prompt("Username: "); err != nil {
			return err
		}
	}
	password, err := a.promptSecret("Password: ")
	if err != nil {
		return err
	}

	s, err := a.desk.Login(ctx, desk.Credentials{Username: username, Password: password}, session.DeviceKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Welcome, %s\n", s.Identity.FullName())
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	s, err := a.desk.Current(ctx, session.DeviceKey)
	if err != nil {
		return err
	}
	id := s.Identity
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", id.FullName())
	fmt.Fprintf(w, "National ID:\t%s\n", id.NationalID)
	fmt.Fprintf(w, "User:\t%s\n", id.LoginName)
	fmt.Fprintf(w, "Email:\t%s\n", id.Email)
	fmt.Fprintf(w, "Phone:\t%s\n", id.Phone)
	fmt.Fprintf(w, "Record:\t%d\n", id.RecordID)
	fmt.Fprintf(w, "Since:\t%s\n", s.CreatedAt.Local().Format("2006-01-02 15:04"))
	return w.Flush()
}

func (a *app) users(ctx context.Context) error {
	users, err := a.desk.Users(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECORD\tUSER\tNAME\tEMAIL")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.RecordID, u.LoginName, u.FullName(), u.Email)
	}
	return w.Flush()
}

func (a *app) register(ctx context.Context) error {
	s, err := a.desk.Enter(ctx, session.DeviceKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Welcome, %s (%s)\n", s.Identity.FullName(), s.Identity.NationalID)

	first, err := a.prompt(fmt.Sprintf("Digit %d of your ID: ", s.Challenge.PositionA))
	if err != nil {
		return err
	}
	second, err := a.prompt(fmt.Sprintf("Digit %d of your ID: ", s.Challenge.PositionB))
	if err != nil {
		return err
	}

	receipt, err := a.desk.Submit(ctx, session.DeviceKey, first, second)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Attendance registered at %s (receipt %s)\n",
		receipt.SubmittedAt.Local().Format("2006-01-02 15:04:05"), receipt.ID)
	if receipt.History != nil {
		fmt.Fprintf(a.out, "%d registrations on record\n", len(receipt.History))
	}
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	var mode, from, to string
	flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
	flagSet.StringVar(&mode, "filter", "all", "all, today, week, month or range")
	flagSet.StringVar(&from, "from", "", "range start (YYYY-MM-DD)")
	flagSet.StringVar(&to, "to", "", "range end (YYYY-MM-DD)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	filterMode, err := attendance.ParseFilterMode(mode)
	if err != nil {
		return err
	}
	f := attendance.Filter{Mode: filterMode, From: from, To: to}
	h, err := a.desk.History(ctx, session.DeviceKey, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "History (%s): showing %d of %d\n", f, len(h.Shown), len(h.All))
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECORD\tDATE\tTIME\tREGISTERED")
	for _, e := range h.Shown {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.RecordID, e.Date, e.Time, e.FullTimestamp)
	}
	return w.Flush()
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptSecret reads without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func (a *app) promptSecret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return a.prompt(label)
	}
	fmt.Fprint(a.out, label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage: registro [flags] [command]

Commands:
  ui         open the login and registration screens (default)
  login      log in and keep the session on this device
  logout     forget the session on this device
  whoami     show the logged-in identity
  users      list the users known to the attendance endpoint
  register   answer the ID challenge and register attendance
  history    list registrations (--filter, --from, --to)

Flags:
%s`, flagSet.FlagUsages())
}
