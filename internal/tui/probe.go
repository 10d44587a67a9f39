// Package tui renders a single service invocation in the terminal. The
// bubbletea program is the invocation's foreground: every handler and cell
// update runs inside its Update loop.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/seantiz/courier/internal/foreground"
	"github.com/seantiz/courier/internal/httpcall"
	"github.com/seantiz/courier/internal/invocation"
	"github.com/seantiz/courier/internal/status"
)

// settleTimeout bounds how long Probe waits for the invocation after the
// program has exited.
const settleTimeout = 5 * time.Second

// Config describes one probe.
type Config struct {
	Name            string
	Target          string
	Client          *http.Client
	Delay           time.Duration
	SimulateFailure bool

	// Headless runs the program without a renderer or input, for
	// non-interactive terminals. The caller prints the Result.
	Headless bool
	Input    io.Reader
	Output   io.Writer
	Logger   *slog.Logger
}

// Result is the observed outcome of a probe.
type Result struct {
	Name       string
	Target     string
	State      invocation.State
	StatusCode int
	Outcome    string
	Body       string
	Detail     string
	Cancelled  bool
	Err        error
}

// Probe calls cfg.Target once and renders the invocation until it settles
// or the user quits.
func Probe(ctx context.Context, cfg Config) (*Result, error) {
	if err := httpcall.ValidateURL(cfg.Target); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Target
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()

	s := &session{name: cfg.Name, target: cfg.Target}
	d := invocation.New(cfg.Name, httpcall.Get(callCtx, cfg.Client, cfg.Target, httpcall.Text)).
		WithDelay(cfg.Delay).
		WithSimulatingFailure(cfg.SimulateFailure)
	s.handle(d)

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if cfg.Headless {
		opts = append(opts, tea.WithInput(nil), tea.WithoutRenderer(), tea.WithoutSignalHandler())
	} else if cfg.Input != nil {
		opts = append(opts, tea.WithInput(cfg.Input))
	}
	if cfg.Output != nil {
		opts = append(opts, tea.WithOutput(cfg.Output))
	}

	p := tea.NewProgram(newModel(s), opts...)
	fg := foreground.NewTeaDispatcher(p, cfg.Logger)
	defer fg.Stop()

	inv := d.Prepare(invocation.NewHost(fg, cfg.Logger))
	s.bind(inv)

	// The first cell updates happen in Start, so it runs on the foreground
	// like every later one.
	fg.Post(func() { inv.Start() })

	_, runErr := p.Run()
	fg.Stop()

	res := s.result()
	if s.state != invocation.Ready {
		if s.running {
			// The user quit early. The call is abandoned.
			cancelCall()
		}
		waitCtx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()
		_, res.Err = inv.Future().Wait(waitCtx)
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return res, fmt.Errorf("run probe: %w", runErr)
	}
	return res, nil
}

// session is the state shared between the model and the invocation's
// handlers. It is only touched on the foreground.
type session struct {
	name   string
	target string

	state     invocation.State
	running   bool
	message   string
	code      int
	err       error
	body      string
	outcome   string
	cancel    func() bool
	cancelled bool
	finished  bool
}

// handle registers the handlers that fill in the outcome.
func (s *session) handle(d *invocation.Descriptor[string]) {
	d.OnSuccess(func(body string) {
		s.body = body
		s.outcome = status.FamilySuccessful.String()
	}).OnAnyStatusCode(func(_ string, code status.Code) {
		s.outcome = code.Family().String()
	}).OnFailure(func(_, _ string) {
		s.outcome = "unknown status"
	}).OnException(func(_ string, _ error) {
		s.outcome = "exception"
	}).OnFinally(func() {
		s.finished = true
	})
}

// bind mirrors the invocation's cells into the session.
func (s *session) bind(inv *invocation.Invocation[string]) {
	inv.State().Watch(func(_, v invocation.State) { s.state = v })
	inv.Running().Watch(func(_, v bool) { s.running = v })
	inv.Message().Watch(func(_, v string) { s.message = v })
	inv.StatusCode().Watch(func(_, v int) { s.code = v })
	inv.Err().Watch(func(_, v error) { s.err = v })
	s.cancel = inv.Cancel
}

// detail is the human readable reason for a failure.
func (s *session) detail() string {
	var fe *invocation.FailureError
	switch {
	case errors.As(s.err, &fe):
		return fe.Message
	case s.err != nil:
		return s.err.Error()
	default:
		return ""
	}
}

func (s *session) result() *Result {
	return &Result{
		Name:       s.name,
		Target:     s.target,
		State:      s.state,
		StatusCode: s.code,
		Outcome:    s.outcome,
		Body:       s.body,
		Detail:     s.detail(),
		Cancelled:  s.cancelled,
	}
}
