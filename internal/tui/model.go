// Package tui renders the login and registration screens in a terminal.
// The model only holds display state; every workflow step runs in a
// tea.Cmd against a Workflows implementation, normally a *desk.Desk.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/puce/registro/internal/attendance"
	"github.com/puce/registro/internal/desk"
	"github.com/puce/registro/internal/session"
)

// Workflows is the part of the desk the screens drive.
type Workflows interface {
	Login(ctx context.Context, creds desk.Credentials, key string) (session.Session, error)
	Logout(ctx context.Context, key string) error
	Enter(ctx context.Context, key string) (session.Session, error)
	Submit(ctx context.Context, key, first, second string) (desk.Receipt, error)
	History(ctx context.Context, key string, f attendance.Filter) (desk.History, error)
}

type screen int

const (
	screenLogin screen = iota
	screenRegistration
)

// Registration screen focus order. The range inputs are only reachable
// while the range filter is selected.
type focus int

const (
	focusFirst focus = iota
	focusSecond
	focusHistory
	focusFrom
	focusTo
)

type (
	loginDoneMsg struct {
		session session.Session
		err     error
	}
	enteredMsg struct {
		session session.Session
		err     error
	}
	submittedMsg struct {
		receipt desk.Receipt
		err     error
	}
	historyMsg struct {
		history desk.History
		err     error
	}
	loggedOutMsg struct{ err error }
	tickMsg      time.Time
)

// Options configures a Model. Desk is required; Key defaults to
// session.DeviceKey.
type Options struct {
	Context context.Context
	Desk    Workflows
	Key     string
	Now     func() time.Time
	Theme   Theme
}

// Model is the bubbletea model for both screens.
type Model struct {
	context context.Context
	desk    Workflows
	key     string
	keys    KeyMap
	styles  styles
	now     func() time.Time
	clock   time.Time

	screen screen
	busy   bool
	modal  string

	username   textinput.Model
	password   textinput.Model
	loginFocus int

	first    textinput.Model
	second   textinput.Model
	from     textinput.Model
	to       textinput.Model
	regFocus focus

	session session.Session
	filter  attendance.Filter
	all     []attendance.Entry
	shown   []attendance.Entry
}

// NewModel builds the model on the login screen. Init tries to enter the
// registration screen straight away, which succeeds when a session is
// already stored under the key.
func NewModel(options Options) Model {
	if options.Context == nil {
		options.Context = context.Background()
	}
	if options.Key == "" {
		options.Key = session.DeviceKey
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	if options.Theme == (Theme{}) {
		options.Theme = DefaultTheme
	}

	model := Model{
		context:  options.Context,
		desk:     options.Desk,
		key:      options.Key,
		keys:     DefaultKeyMap,
		styles:   newStyles(options.Theme),
		now:      options.Now,
		clock:    options.Now(),
		username: newInput("username", 64),
		password: newInput("password", 128),
		first:    newInput("?", 1),
		second:   newInput("?", 1),
		from:     newInput(attendance.DateLayout, 10),
		to:       newInput(attendance.DateLayout, 10),
		filter:   attendance.Filter{Mode: attendance.FilterAll},
	}
	model.password.EchoMode = textinput.EchoPassword
	model.password.EchoCharacter = '•'
	model.username.Focus()
	return model
}

func newInput(placeholder string, limit int) textinput.Model {
	input := textinput.New()
	input.Placeholder = placeholder
	input.CharLimit = limit
	input.Prompt = ""
	return input
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, model.enter(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(now time.Time) tea.Msg { return tickMsg(now) })
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tickMsg:
		previous := model.clock
		model.clock = time.Time(message)
		if !sameDay(previous, model.clock) {
			// Relative filters move with the calendar.
			model.shown = model.filter.Apply(model.all, model.now())
		}
		return model, tick()

	case loginDoneMsg:
		model.busy = false
		if message.err != nil {
			model.modal = attendance.Message(message.err)
			return model, nil
		}
		model.password.SetValue("")
		model.session = message.session
		return model, model.enter()

	case enteredMsg:
		if message.err != nil {
			if desk.IsRedirect(message.err) {
				// Nothing stored yet: stay on login without complaint.
				return model.toLogin(""), nil
			}
			model.modal = attendance.Message(message.err)
			return model, nil
		}
		model.session = message.session
		model.screen = screenRegistration
		model.first.SetValue("")
		model.second.SetValue("")
		model.setRegistrationFocus(focusFirst)
		return model, model.fetchHistory()

	case submittedMsg:
		model.busy = false
		if message.err != nil {
			if desk.IsRedirect(message.err) {
				return model.toLogin(attendance.Message(message.err)), nil
			}
			model.modal = attendance.Message(message.err)
			return model, nil
		}
		registered := "Attendance registered at " + message.receipt.SubmittedAt.Local().Format("15:04:05")
		if message.receipt.Next.IsZero() {
			// The session was cleared while the submission ran.
			return model.toLogin(registered), nil
		}
		model.session.Challenge = message.receipt.Next
		model.first.SetValue("")
		model.second.SetValue("")
		model.setRegistrationFocus(focusFirst)
		model.modal = registered
		if message.receipt.History == nil {
			return model, model.fetchHistory()
		}
		model.all = message.receipt.History
		model.shown = model.filter.Apply(model.all, model.now())
		return model, nil

	case historyMsg:
		if message.err != nil {
			if desk.IsRedirect(message.err) {
				return model.toLogin(attendance.Message(message.err)), nil
			}
			model.modal = attendance.Message(message.err)
			return model, nil
		}
		model.all = message.history.All
		model.shown = message.history.Shown
		return model, nil

	case loggedOutMsg:
		if message.err != nil {
			model.modal = attendance.Message(message.err)
			return model, nil
		}
		return model.toLogin(""), nil

	case tea.KeyMsg:
		if message.Type == tea.KeyCtrlC {
			return model, tea.Quit
		}
		if model.modal != "" {
			if key.Matches(message, model.keys.Dismiss) {
				model.modal = ""
			}
			return model, nil
		}
		if key.Matches(message, model.keys.Quit) {
			return model, tea.Quit
		}
		if model.screen == screenLogin {
			return model.handleLoginKeys(message)
		}
		return model.handleRegistrationKeys(message)
	}

	// Cursor blink and other input-internal messages.
	return model.updateFocusedInput(message)
}

func (model Model) handleLoginKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Next), key.Matches(message, model.keys.Previous):
		model.setLoginFocus(1 - model.loginFocus)
		return model, nil
	case key.Matches(message, model.keys.Submit):
		if !model.canLogin() {
			return model, nil
		}
		model.busy = true
		return model, model.login()
	}
	return model.updateFocusedInput(message)
}

func (model Model) handleRegistrationKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Logout):
		return model, model.logout()
	case key.Matches(message, model.keys.Next):
		model.setRegistrationFocus(model.nextFocus(1))
		return model, nil
	case key.Matches(message, model.keys.Previous):
		model.setRegistrationFocus(model.nextFocus(-1))
		return model, nil
	case key.Matches(message, model.keys.Submit):
		switch model.regFocus {
		case focusFirst, focusSecond:
			if !model.canSubmit() {
				return model, nil
			}
			model.busy = true
			return model, model.submit()
		case focusFrom, focusTo:
			model.applyFilter(attendance.Filter{
				Mode: attendance.FilterRange,
				From: strings.TrimSpace(model.from.Value()),
				To:   strings.TrimSpace(model.to.Value()),
			})
			return model, nil
		}
		return model, nil
	}

	if model.regFocus == focusHistory {
		switch {
		case key.Matches(message, model.keys.FilterAll):
			model.applyFilter(attendance.Filter{Mode: attendance.FilterAll})
		case key.Matches(message, model.keys.FilterToday):
			model.applyFilter(attendance.Filter{Mode: attendance.FilterToday})
		case key.Matches(message, model.keys.FilterWeek):
			model.applyFilter(attendance.Filter{Mode: attendance.FilterWeek})
		case key.Matches(message, model.keys.FilterMonth):
			model.applyFilter(attendance.Filter{Mode: attendance.FilterMonth})
		case key.Matches(message, model.keys.FilterRange):
			model.applyFilter(attendance.Filter{Mode: attendance.FilterRange})
			model.setRegistrationFocus(focusFrom)
		}
		return model, nil
	}
	return model.updateFocusedInput(message)
}

// applyFilter re-filters the loaded history locally. A range with a
// missing bound shows everything until both are entered.
func (model *Model) applyFilter(filter attendance.Filter) {
	if filter.Mode == attendance.FilterRange && filter.From == "" && filter.To == "" {
		filter.From = strings.TrimSpace(model.from.Value())
		filter.To = strings.TrimSpace(model.to.Value())
	}
	if err := filter.Validate(); err != nil {
		model.modal = attendance.Message(err)
		return
	}
	model.filter = filter
	model.shown = filter.Apply(model.all, model.now())
}

func (model Model) canLogin() bool {
	return !model.busy && strings.TrimSpace(model.username.Value()) != "" && model.password.Value() != ""
}

func (model Model) canSubmit() bool {
	return !model.busy && model.first.Value() != "" && model.second.Value() != ""
}

func (model Model) toLogin(modal string) Model {
	model.screen = screenLogin
	model.busy = false
	model.modal = modal
	model.session = session.Session{}
	model.all, model.shown = nil, nil
	model.filter = attendance.Filter{Mode: attendance.FilterAll}
	model.password.SetValue("")
	model.setLoginFocus(0)
	model.first.Blur()
	model.second.Blur()
	model.from.Blur()
	model.to.Blur()
	return model
}

func (model *Model) setLoginFocus(index int) {
	model.loginFocus = index
	if index == 0 {
		model.username.Focus()
		model.password.Blur()
	} else {
		model.password.Focus()
		model.username.Blur()
	}
}

func (model *Model) setRegistrationFocus(target focus) {
	model.regFocus = target
	inputs := map[focus]*textinput.Model{
		focusFirst:  &model.first,
		focusSecond: &model.second,
		focusFrom:   &model.from,
		focusTo:     &model.to,
	}
	for f, input := range inputs {
		if f == target {
			input.Focus()
		} else {
			input.Blur()
		}
	}
}

func (model Model) nextFocus(step int) focus {
	count := int(focusHistory) + 1
	if model.filter.Mode == attendance.FilterRange {
		count = int(focusTo) + 1
	}
	return focus(((int(model.regFocus)+step)%count + count) % count)
}

func (model Model) updateFocusedInput(message tea.Msg) (tea.Model, tea.Cmd) {
	var command tea.Cmd
	if model.screen == screenLogin {
		if model.loginFocus == 0 {
			model.username, command = model.username.Update(message)
		} else {
			model.password, command = model.password.Update(message)
		}
		return model, command
	}
	switch model.regFocus {
	case focusFirst, focusSecond:
		if keyMessage, ok := message.(tea.KeyMsg); ok && !digitsOnly(keyMessage) {
			return model, nil
		}
	}
	switch model.regFocus {
	case focusFirst:
		model.first, command = model.first.Update(message)
	case focusSecond:
		model.second, command = model.second.Update(message)
	case focusFrom:
		model.from, command = model.from.Update(message)
	case focusTo:
		model.to, command = model.to.Update(message)
	}
	return model, command
}

// digitsOnly rejects typed text other than decimal digits. Editing keys
// such as backspace pass.
func digitsOnly(message tea.KeyMsg) bool {
	switch message.Type {
	case tea.KeySpace:
		return false
	case tea.KeyRunes:
	default:
		return true
	}
	for _, r := range message.Runes {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (model Model) login() tea.Cmd {
	ctx, workflows, sessionKey := model.context, model.desk, model.key
	creds := desk.Credentials{Username: model.username.Value(), Password: model.password.Value()}
	return func() tea.Msg {
		s, err := workflows.Login(ctx, creds, sessionKey)
		return loginDoneMsg{session: s, err: err}
	}
}

func (model Model) enter() tea.Cmd {
	ctx, workflows, sessionKey := model.context, model.desk, model.key
	return func() tea.Msg {
		s, err := workflows.Enter(ctx, sessionKey)
		return enteredMsg{session: s, err: err}
	}
}

func (model Model) submit() tea.Cmd {
	ctx, workflows, sessionKey := model.context, model.desk, model.key
	first, second := model.first.Value(), model.second.Value()
	return func() tea.Msg {
		receipt, err := workflows.Submit(ctx, sessionKey, first, second)
		return submittedMsg{receipt: receipt, err: err}
	}
}

func (model Model) fetchHistory() tea.Cmd {
	ctx, workflows, sessionKey, filter := model.context, model.desk, model.key, model.filter
	return func() tea.Msg {
		history, err := workflows.History(ctx, sessionKey, filter)
		return historyMsg{history: history, err: err}
	}
}

func (model Model) logout() tea.Cmd {
	ctx, workflows, sessionKey := model.context, model.desk, model.key
	return func() tea.Msg {
		return loggedOutMsg{err: workflows.Logout(ctx, sessionKey)}
	}
}

// View implements tea.Model.
func (model Model) View() string {
	var body string
	if model.screen == screenLogin {
		body = model.viewLogin()
	} else {
		body = model.viewRegistration()
	}
	if model.modal != "" {
		body += "\n\n" + model.styles.modal.Render(model.modal+"\n\n"+model.styles.help.Render("enter to close"))
	}
	return body + "\n"
}

func (model Model) viewLogin() string {
	var b strings.Builder
	b.WriteString(model.styles.title.Render("Attendance registration"))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s\n", model.styles.label.Render("Username:"), model.username.View())
	fmt.Fprintf(&b, "%s %s\n\n", model.styles.label.Render("Password:"), model.password.View())
	switch {
	case model.busy:
		b.WriteString(model.styles.faint.Render("Logging in..."))
	case model.canLogin():
		b.WriteString(model.styles.accent.Render("[ Log in ]"))
	default:
		b.WriteString(model.styles.faint.Render("[ Log in ]"))
	}
	b.WriteString("\n\n")
	b.WriteString(model.styles.help.Render("tab switch field · enter log in · esc quit"))
	return b.String()
}

func (model Model) viewRegistration() string {
	identity := model.session.Identity
	challenge := model.session.Challenge

	var b strings.Builder
	b.WriteString(model.styles.title.Render("Welcome, " + identity.FullName()))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s    %s %s\n\n",
		model.styles.faint.Render("National ID:"), identity.NationalID,
		model.styles.faint.Render("Time:"), model.clock.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&b, "%s [%s]    %s [%s]\n\n",
		model.styles.label.Render(fmt.Sprintf("Digit %d of your ID:", challenge.PositionA)), model.first.View(),
		model.styles.label.Render(fmt.Sprintf("Digit %d of your ID:", challenge.PositionB)), model.second.View())
	switch {
	case model.busy:
		b.WriteString(model.styles.faint.Render("Registering..."))
	case model.canSubmit():
		b.WriteString(model.styles.accent.Render("[ Register attendance ]"))
	default:
		b.WriteString(model.styles.faint.Render("[ Register attendance ]"))
	}
	b.WriteString("\n\n")

	header := fmt.Sprintf("History (%s) showing %d of %d", model.filter, len(model.shown), len(model.all))
	if model.regFocus == focusHistory {
		b.WriteString(model.styles.accent.Render(header))
	} else {
		b.WriteString(model.styles.title.Render(header))
	}
	b.WriteString("\n")
	if model.filter.Mode == attendance.FilterRange {
		fmt.Fprintf(&b, "%s %s  %s %s\n",
			model.styles.faint.Render("From:"), model.from.View(),
			model.styles.faint.Render("To:"), model.to.View())
	}
	b.WriteString(model.styles.tableHd.Render(fmt.Sprintf("%-8s %-12s %-10s %s", "Record", "Date", "Time", "Registered")))
	b.WriteString("\n")
	if len(model.shown) == 0 {
		b.WriteString(model.styles.faint.Render("No entries"))
		b.WriteString("\n")
	}
	for _, entry := range model.shown {
		fmt.Fprintf(&b, "%-8d %-12s %-10s %s\n", entry.RecordID, entry.Date, entry.Time, entry.FullTimestamp)
	}
	b.WriteString("\n")
	b.WriteString(model.styles.help.Render("tab next · enter register · a/t/w/m/r filter (history) · C-o log out · esc quit"))
	return b.String()
}
