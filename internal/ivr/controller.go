package ivr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Delays sequences the scheduled transitions. Zero fields use the defaults.
type Delays struct {
	Greeting      time.Duration
	Menu          time.Duration
	AgentTransfer time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Greeting:      500 * time.Millisecond,
		Menu:          1 * time.Second,
		AgentTransfer: 3 * time.Second,
	}
}

// Recorder receives controller telemetry.
type Recorder interface {
	DigitPressed(phase Phase)
	BackendRequest(op string, err error, elapsed time.Duration)
	MessageLogFailed()
}

type noopRecorder struct{}

func (noopRecorder) DigitPressed(Phase)                         {}
func (noopRecorder) BackendRequest(string, error, time.Duration) {}
func (noopRecorder) MessageLogFailed()                          {}

// Options wires a Controller. Backend is required; everything else has a default.
type Options struct {
	Catalog        *Catalog
	Backend        Backend
	Tones          TonePlayer
	Speaker        Speaker
	Scheduler      Scheduler
	Rules          []IntentRule
	Delays         Delays
	BackendTimeout time.Duration
	NewID          func() string
	Now            func() time.Time
	Logger         *zerolog.Logger
	Recorder       Recorder
	// OnEvent is called with the controller lock held and must not block.
	OnEvent func(Event)
}

// Controller drives one simulated phone call.
//
//	idle --StartCall--> connecting --(greeting)--> awaiting_language
//	awaiting_language --digit 1|2|3--> main_menu
//	main_menu --digit 1 / agent phrase--> (delay) idle
//	main_menu --digit 2 / website phrase--> main_menu (transfer code)
//	any active --digit 0|9 / goodbye phrase--> idle
//	any --EndCall|ResetDemo--> idle
type Controller struct {
	catalog *Catalog
	backend Backend
	tones   TonePlayer
	speaker Speaker
	sched   Scheduler
	rules   []IntentRule
	delays  Delays
	timeout time.Duration
	newID   func() string
	now     func() time.Time
	log     zerolog.Logger
	rec     Recorder
	onEvent func(Event)

	baseCtx  context.Context
	cancel   context.CancelFunc
	requests sync.WaitGroup
	logs     sync.WaitGroup

	mu     sync.Mutex
	st     callState
	gen    uint64
	timers []Timer
	closed bool
	// pending counts backend requests in flight; idle is closed when it
	// drops back to zero.
	pending int
	idle    chan struct{}
}

type callState struct {
	active       bool
	phase        Phase
	lang         Language
	confirmed    bool
	transcript   []Message
	processing   bool
	transferCode string
	userID       string
	audio        bool
}

func NewController(opts Options) (*Controller, error) {
	if opts.Backend == nil {
		return nil, errors.New("ivr: backend is required")
	}
	catalog := opts.Catalog
	if catalog == nil {
		var err error
		catalog, err = DefaultCatalog()
		if err != nil {
			return nil, err
		}
	}

	delays := opts.Delays
	defaults := DefaultDelays()
	if delays.Greeting <= 0 {
		delays.Greeting = defaults.Greeting
	}
	if delays.Menu <= 0 {
		delays.Menu = defaults.Menu
	}
	if delays.AgentTransfer <= 0 {
		delays.AgentTransfer = defaults.AgentTransfer
	}

	c := &Controller{
		catalog: catalog,
		backend: opts.Backend,
		tones:   opts.Tones,
		speaker: opts.Speaker,
		sched:   opts.Scheduler,
		rules:   opts.Rules,
		delays:  delays,
		timeout: opts.BackendTimeout,
		newID:   opts.NewID,
		now:     opts.Now,
		rec:     opts.Recorder,
		onEvent: opts.OnEvent,
	}
	if c.tones == nil {
		c.tones = noopTones{}
	}
	if c.speaker == nil {
		c.speaker = noopSpeaker{}
	}
	if c.sched == nil {
		c.sched = RealScheduler{}
	}
	if c.rules == nil {
		c.rules = DefaultIntentRules()
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.rec == nil {
		c.rec = noopRecorder{}
	}
	if opts.Logger != nil {
		c.log = *opts.Logger
	} else {
		c.log = zerolog.Nop()
	}

	c.baseCtx, c.cancel = context.WithCancel(context.Background())
	c.st = callState{phase: PhaseIdle, lang: catalog.DefaultLanguage, audio: true}
	return c, nil
}

// StartCall begins a new call and schedules the greeting.
func (c *Controller) StartCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.st.active {
		return ErrCallActive
	}

	c.stopTimersLocked()
	c.gen++
	c.st = callState{
		active: true,
		phase:  PhaseConnecting,
		lang:   c.catalog.DefaultLanguage,
		userID: c.newID(),
		audio:  c.st.audio,
	}
	c.log.Info().Str("userId", c.st.userID).Msg("call started")
	c.emitStateLocked()

	c.scheduleLocked(c.delays.Greeting, func() {
		c.appendLocked(KindAssistant, c.catalog.Greeting)
		c.speakLocked(c.catalog.Greeting, c.catalog.DefaultLanguage)
		c.st.phase = PhaseAwaitingLanguage
		c.emitStateLocked()
	})
	return nil
}

// PressDigit handles one keypad press.
func (c *Controller) PressDigit(digit string) error {
	digit = strings.TrimSpace(digit)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !isDigit(digit) {
		return ErrInvalidDigit
	}
	if !c.st.active {
		return ErrCallInactive
	}
	if c.st.processing {
		return ErrProcessing
	}

	c.rec.DigitPressed(c.st.phase)
	if c.st.audio {
		c.tones.PlayTone(digit)
	}
	b := c.catalog.Bundle(c.st.lang)
	c.appendLocked(KindUser, Render(b.Messages.DigitPressed, map[string]string{"digit": digit}))

	if digit == "0" || digit == "9" {
		c.goodbyeLocked()
		return nil
	}

	switch c.st.phase {
	case PhaseConnecting:
		c.appendLocked(KindSystem, b.Messages.InvalidLanguage)
	case PhaseAwaitingLanguage:
		lang, ok := c.catalog.LanguageForDigit(digit)
		if !ok {
			c.appendLocked(KindSystem, b.Messages.InvalidLanguage)
			return nil
		}
		c.confirmLanguageLocked(lang)
	case PhaseMainMenu:
		switch digit {
		case "1":
			c.agentLocked()
		case "2":
			c.transferLocked()
		default:
			c.appendLocked(KindSystem, b.Messages.UnrecognizedOption)
		}
	}
	return nil
}

// SubmitText handles a free-text ("speech") turn.
func (c *Controller) SubmitText(text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if text == "" {
		return ErrEmptyText
	}
	if !c.st.active {
		return ErrCallInactive
	}
	if c.st.processing {
		return ErrProcessing
	}

	c.appendLocked(KindUser, text)

	if c.st.phase != PhaseMainMenu {
		if c.st.phase == PhaseAwaitingLanguage {
			if lang, ok := c.catalog.LanguageForText(text); ok {
				c.confirmLanguageLocked(lang)
				return nil
			}
		}
		c.appendLocked(KindSystem, c.catalog.Bundle(c.st.lang).Messages.InvalidLanguage)
		return nil
	}

	switch DetectIntent(c.rules, text, c.phrasesLocked()) {
	case IntentGoodbye:
		c.goodbyeLocked()
	case IntentAgent:
		c.agentLocked()
	case IntentWebsite:
		c.transferLocked()
	default:
		c.chatLocked()
	}
	return nil
}

// EndCall hangs up. Ending an inactive call is a no-op.
func (c *Controller) EndCall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.st.active {
		return nil
	}
	c.speaker.Stop()
	c.appendLocked(KindSystem, c.catalog.Bundle(c.st.lang).Messages.CallEnded)
	c.deactivateLocked()
	c.log.Info().Str("userId", c.st.userID).Msg("call ended by caller")
	return nil
}

// ResetDemo returns to the initial empty session, keeping only the audio preference.
func (c *Controller) ResetDemo() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.speaker.Stop()
	c.stopTimersLocked()
	c.gen++
	c.st = callState{phase: PhaseIdle, lang: c.catalog.DefaultLanguage, audio: c.st.audio}
	c.emitStateLocked()
}

// SetAudioEnabled toggles tones and speech. Disabling halts current speech.
func (c *Controller) SetAudioEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.st.audio == enabled {
		return
	}
	c.st.audio = enabled
	if !enabled {
		c.speaker.Stop()
	}
	c.emitStateLocked()
}

func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Settle waits until no backend request is outstanding.
func (c *Controller) Settle(ctx context.Context) error {
	c.mu.Lock()
	if c.pending == 0 {
		c.mu.Unlock()
		return nil
	}
	if c.idle == nil {
		c.idle = make(chan struct{})
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) beginRequestLocked() {
	c.pending++
	c.requests.Add(1)
}

func (c *Controller) endRequest() {
	c.mu.Lock()
	c.pending--
	if c.pending == 0 && c.idle != nil {
		close(c.idle)
		c.idle = nil
	}
	c.mu.Unlock()
	c.requests.Done()
}

// Close stops timers and speech, cancels outstanding requests and waits for
// background work to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimersLocked()
	c.gen++
	c.speaker.Stop()
	c.mu.Unlock()

	c.cancel()
	c.requests.Wait()
	c.logs.Wait()
}

func (c *Controller) confirmLanguageLocked(lang Language) {
	c.st.lang = lang
	c.st.confirmed = true
	c.st.phase = PhaseMainMenu
	b := c.catalog.Bundle(lang)
	c.appendLocked(KindSystem, Render(b.Messages.LanguageConfirmed, map[string]string{"language": b.Name}))
	c.emitStateLocked()

	c.scheduleLocked(c.delays.Menu, func() {
		c.appendLocked(KindAssistant, b.Messages.MainMenu)
		c.speakLocked(b.Messages.MainMenu, lang)
	})
}

func (c *Controller) goodbyeLocked() {
	b := c.catalog.Bundle(c.st.lang)
	c.appendLocked(KindAssistant, b.Messages.Goodbye)
	c.speakLocked(b.Messages.Goodbye, c.st.lang)
	c.deactivateLocked()
}

func (c *Controller) agentLocked() {
	b := c.catalog.Bundle(c.st.lang)
	c.appendLocked(KindAssistant, b.Messages.ConnectingAgent)
	c.speakLocked(b.Messages.ConnectingAgent, c.st.lang)
	c.st.processing = true
	c.emitStateLocked()

	c.scheduleLocked(c.delays.AgentTransfer, func() {
		c.appendLocked(KindSystem, b.Messages.AgentTransferred)
		c.deactivateLocked()
	})
}

func (c *Controller) transferLocked() {
	if c.st.transferCode != "" {
		c.announceCodeLocked()
		return
	}

	c.st.processing = true
	c.emitStateLocked()

	gen := c.gen
	req := TokenRequest{
		UserID:   c.st.userID,
		Messages: chatMessages(c.st.transcript, true),
		Language: c.st.lang,
	}
	c.beginRequestLocked()
	go func() {
		defer c.endRequest()
		ctx, cancel := context.WithTimeout(c.baseCtx, c.timeout)
		defer cancel()
		start := time.Now()
		code, err := c.backend.GenerateToken(ctx, req)
		c.rec.BackendRequest("generate_token", err, time.Since(start))
		c.finishTransfer(gen, strings.TrimSpace(code), err)
	}()
}

func (c *Controller) finishTransfer(gen uint64, code string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		c.log.Debug().Msg("discarding transfer token result for a finished call")
		return
	}
	c.st.processing = false
	if err == nil && code == "" {
		err = errors.New("empty transfer token")
	}
	if err != nil {
		c.log.Warn().Err(err).Str("userId", c.st.userID).Msg("transfer token request failed")
		c.appendLocked(KindSystem, c.catalog.Bundle(c.st.lang).Messages.TroubleProcessing)
		c.emitStateLocked()
		return
	}
	c.st.transferCode = code
	c.announceCodeLocked()
	c.emitStateLocked()
}

func (c *Controller) announceCodeLocked() {
	b := c.catalog.Bundle(c.st.lang)
	text := Render(b.Messages.TransferCode, map[string]string{"code": c.st.transferCode})
	c.appendLocked(KindAssistant, text)
	c.speakLocked(text, c.st.lang)
}

func (c *Controller) chatLocked() {
	c.st.processing = true
	c.emitStateLocked()

	gen := c.gen
	req := ChatRequest{
		SessionID: c.st.userID,
		Messages:  chatMessages(c.st.transcript, false),
		Language:  c.st.lang,
	}
	c.beginRequestLocked()
	go func() {
		defer c.endRequest()
		ctx, cancel := context.WithTimeout(c.baseCtx, c.timeout)
		defer cancel()
		start := time.Now()
		reply, err := c.backend.Chat(ctx, req)
		c.rec.BackendRequest("chat", err, time.Since(start))
		c.finishChat(gen, strings.TrimSpace(reply), err)
	}()
}

func (c *Controller) finishChat(gen uint64, reply string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		c.log.Debug().Msg("discarding chat reply for a finished call")
		return
	}
	c.st.processing = false
	b := c.catalog.Bundle(c.st.lang)
	if err == nil && reply == "" {
		err = errors.New("empty chat reply")
	}
	if err != nil {
		c.log.Warn().Err(err).Str("userId", c.st.userID).Msg("chat request failed")
		c.appendLocked(KindSystem, b.Messages.TroubleProcessing)
		c.emitStateLocked()
		return
	}
	c.appendLocked(KindAssistant, reply)
	c.speakLocked(reply, c.st.lang)
	c.appendLocked(KindAssistant, b.Messages.AnythingElse)
	c.speakLocked(b.Messages.AnythingElse, c.st.lang)
	c.emitStateLocked()
}

func (c *Controller) deactivateLocked() {
	c.stopTimersLocked()
	c.gen++
	c.st.active = false
	c.st.phase = PhaseIdle
	c.st.processing = false
	c.emitStateLocked()
}

// scheduleLocked runs f under the lock after d unless the call moved on.
func (c *Controller) scheduleLocked(d time.Duration, f func()) {
	gen := c.gen
	t := c.sched.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.gen {
			return
		}
		f()
	})
	c.timers = append(c.timers, t)
}

func (c *Controller) stopTimersLocked() {
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
}

func (c *Controller) appendLocked(kind MessageKind, text string) {
	msg := Message{Kind: kind, Text: text, Timestamp: c.now().UTC()}
	c.st.transcript = append(c.st.transcript, msg)
	if c.onEvent != nil {
		c.onEvent(Event{Type: EventMessage, Message: msg})
	}
	if c.st.userID != "" {
		c.logMessage(c.st.userID, kind, text)
	}
}

// logMessage persists a transcript entry without waiting. The in-memory
// transcript stays authoritative when the write fails.
func (c *Controller) logMessage(userID string, kind MessageKind, text string) {
	c.logs.Add(1)
	go func() {
		defer c.logs.Done()
		ctx, cancel := context.WithTimeout(c.baseCtx, c.timeout)
		defer cancel()
		if err := c.backend.AddMessage(ctx, userID, kind, text); err != nil {
			c.rec.MessageLogFailed()
			c.log.Warn().Err(err).Str("userId", userID).Str("role", string(kind)).Msg("session log write failed")
		}
	}()
}

func (c *Controller) speakLocked(text string, lang Language) {
	if !c.st.audio {
		return
	}
	b := c.catalog.Bundle(lang)
	err := c.speaker.Speak(Utterance{Text: text, Language: lang, Locale: b.Locale, VoiceID: b.VoiceID})
	if err != nil {
		c.log.Warn().Err(err).Str("language", string(lang)).Msg("speech synthesis failed")
	}
}

func (c *Controller) phrasesLocked() []PhraseSets {
	sets := []PhraseSets{c.catalog.Bundle(c.st.lang).Phrases}
	if c.st.lang != c.catalog.DefaultLanguage {
		sets = append(sets, c.catalog.Bundle(c.catalog.DefaultLanguage).Phrases)
	}
	return sets
}

func (c *Controller) emitStateLocked() {
	if c.onEvent != nil {
		c.onEvent(Event{Type: EventState, Session: c.snapshotLocked()})
	}
}

func (c *Controller) snapshotLocked() Session {
	return Session{
		Active:            c.st.active,
		Phase:             c.st.phase,
		SelectedLanguage:  c.st.lang,
		LanguageConfirmed: c.st.confirmed,
		Transcript:        cloneMessages(c.st.transcript),
		Processing:        c.st.processing,
		TransferCode:      c.st.transferCode,
		ExternalUserID:    c.st.userID,
		AudioEnabled:      c.st.audio,
	}
}

// TransferToken returns the issued code with its language and transcript.
func (c *Controller) TransferToken() (TransferToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.transferCode == "" {
		return TransferToken{}, false
	}
	return TransferToken{
		Code:       c.st.transferCode,
		Language:   c.st.lang,
		Transcript: cloneMessages(c.st.transcript),
	}, true
}

func chatMessages(transcript []Message, includeSystem bool) []ChatMessage {
	out := make([]ChatMessage, 0, len(transcript))
	for _, m := range transcript {
		if m.Kind == KindSystem && !includeSystem {
			continue
		}
		out = append(out, ChatMessage{Role: string(m.Kind), Content: m.Text})
	}
	return out
}
