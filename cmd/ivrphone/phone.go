package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aldrinstellus/ivrdemo/internal/audio"
	"github.com/aldrinstellus/ivrdemo/internal/backend"
	"github.com/aldrinstellus/ivrdemo/internal/brain"
	"github.com/aldrinstellus/ivrdemo/internal/handoff"
	"github.com/aldrinstellus/ivrdemo/internal/ivr"
	"github.com/aldrinstellus/ivrdemo/internal/logging"
	"github.com/aldrinstellus/ivrdemo/internal/store"
)

const settleTimeout = 5 * time.Second

func run(cmd *cobra.Command, opts options) error {
	logger := logging.New(logging.Config{Level: opts.logLevel, Format: "console"}, cmd.ErrOrStderr())

	catalog, err := ivr.LoadCatalog(opts.bundlePath)
	if err != nil {
		return fmt.Errorf("load bundles: %w", err)
	}

	var be ivr.Backend
	if opts.backendURL != "" {
		be = backend.NewClient(opts.backendURL, 15*time.Second)
	} else {
		st := store.NewMemoryStore()
		defer st.Close()
		svc, err := handoff.NewService(handoff.Options{
			Store:  st,
			Brain:  brain.NewMockAdapter(),
			Logger: logger,
		})
		if err != nil {
			return err
		}
		be = svc
	}

	p, err := newPhone(phoneConfig{
		Catalog: catalog,
		Backend: be,
		Out:     cmd.OutOrStdout(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer p.close()

	if opts.noAudio {
		p.ctrl.SetAudioEnabled(false)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Type /start to dial. /quit exits.")
	return p.loop(cmd.Context(), cmd.InOrStdin())
}

type phoneConfig struct {
	Catalog   *ivr.Catalog
	Backend   ivr.Backend
	Scheduler ivr.Scheduler
	Out       io.Writer
	Logger    zerolog.Logger
}

// phone prints controller output from a single goroutine so OnEvent never
// blocks on the terminal.
type phone struct {
	ctrl  *ivr.Controller
	out   io.Writer
	lines chan string
	done  chan struct{}
}

func newPhone(cfg phoneConfig) (*phone, error) {
	p := &phone{
		out:   cfg.Out,
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}
	ctrl, err := ivr.NewController(ivr.Options{
		Catalog:   cfg.Catalog,
		Backend:   cfg.Backend,
		Tones:     terminalTones{p: p},
		Scheduler: cfg.Scheduler,
		Logger:    &cfg.Logger,
		OnEvent:   p.onEvent,
	})
	if err != nil {
		return nil, err
	}
	p.ctrl = ctrl
	go p.print()
	return p, nil
}

func (p *phone) onEvent(ev ivr.Event) {
	if ev.Type != ivr.EventMessage {
		return
	}
	p.emit(fmt.Sprintf("[%s] %s", ev.Message.Kind, ev.Message.Text))
}

func (p *phone) emit(line string) {
	select {
	case p.lines <- line:
	default:
	}
}

func (p *phone) print() {
	defer close(p.done)
	for line := range p.lines {
		fmt.Fprintln(p.out, line)
	}
}

func (p *phone) loop(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx != nil && ctx.Err() != nil {
			return nil
		}
		quit, err := p.handleLine(sc.Text())
		if err != nil {
			p.emit("! " + err.Error())
		}
		if quit {
			return nil
		}
	}
	return sc.Err()
}

// handleLine applies one line of input and reports whether to quit.
func (p *phone) handleLine(line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/start":
		return false, p.ctrl.StartCall()
	case "/end":
		return false, p.ctrl.EndCall()
	case "/reset":
		p.ctrl.ResetDemo()
		return false, nil
	case "/mute":
		p.ctrl.SetAudioEnabled(false)
		return false, nil
	case "/unmute":
		p.ctrl.SetAudioEnabled(true)
		return false, nil
	}
	if len(line) == 1 && strings.ContainsAny(line, "0123456789*#") {
		return false, p.ctrl.PressDigit(line)
	}
	return false, p.ctrl.SubmitText(line)
}

func (p *phone) close() {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	_ = p.ctrl.Settle(ctx)
	p.ctrl.Close()
	close(p.lines)
	<-p.done
}

type terminalTones struct {
	p *phone
}

func (t terminalTones) PlayTone(digit string) {
	low, high, ok := audio.Frequencies(digit)
	if !ok {
		return
	}
	t.p.emit(fmt.Sprintf("  ~ tone %s (%.0f+%.0f Hz)", digit, low, high))
}
