package foreground

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// hostModel is a minimal bubbletea model that forwards foreground actions.
type hostModel struct{}

func (hostModel) Init() tea.Cmd { return nil }

func (m hostModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if HandleMsg(msg) {
		return m, nil
	}
	return m, nil
}

func (hostModel) View() string { return "" }

func startHostProgram(t *testing.T) (*tea.Program, *TeaDispatcher) {
	t.Helper()
	p := tea.NewProgram(hostModel{},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	)

	runErr := make(chan error, 1)
	go func() {
		_, err := p.Run()
		runErr <- err
	}()

	d := NewTeaDispatcher(p, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(func() {
		p.Quit()
		select {
		case err := <-runErr:
			if err != nil {
				t.Errorf("program Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("program did not quit")
		}
		d.Stop()
	})
	return p, d
}

func TestTeaDispatcherRunsActionsInOrder(t *testing.T) {
	_, d := startHostProgram(t)

	var order []int
	for i := 0; i < 20; i++ {
		d.Post(func() { order = append(order, i) })
	}
	if err := d.RunAndWait(func() {}); err != nil {
		t.Fatalf("RunAndWait: %v", err)
	}

	if len(order) != 20 {
		t.Fatalf("ran %d actions, want 20", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestTeaDispatcherRunAndWaitReturnsPanic(t *testing.T) {
	_, d := startHostProgram(t)

	err := d.RunAndWait(func() { panic("handler failed") })
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *PanicError", err)
	}
}

func TestTeaDispatcherStopReleasesWaiters(t *testing.T) {
	// A send function that never delivers simulates a program that exited.
	d := newTeaDispatcher(func(tea.Msg) {}, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.RunAndWait(func() {})
	}()

	time.Sleep(20 * time.Millisecond)
	d.Stop()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("RunAndWait = %v, want ErrStopped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunAndWait not released by Stop")
	}

	if err := d.RunAndWait(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("RunAndWait after Stop = %v, want ErrStopped", err)
	}
}

func TestHandleMsgIgnoresOtherMessages(t *testing.T) {
	if HandleMsg(tea.KeyMsg{Type: tea.KeyEnter}) {
		t.Error("HandleMsg handled a key message")
	}

	ran := false
	if !HandleMsg(actionMsg{run: func() { ran = true }}) {
		t.Error("HandleMsg did not handle an action message")
	}
	if !ran {
		t.Error("action did not run")
	}
}
