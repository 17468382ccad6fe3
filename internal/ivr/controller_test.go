package ivr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type loggedMessage struct {
	UserID  string
	Role    MessageKind
	Content string
}

type fakeBackend struct {
	mu        sync.Mutex
	logged    []loggedMessage
	tokenReqs []TokenRequest
	chatReqs  []ChatRequest

	token    string
	tokenErr error
	reply    string
	chatErr  error
	logErr   error
	// gate, when set, holds token and chat requests until closed.
	gate chan struct{}
}

func (b *fakeBackend) AddMessage(_ context.Context, userID string, role MessageKind, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logged = append(b.logged, loggedMessage{UserID: userID, Role: role, Content: content})
	return b.logErr
}

func (b *fakeBackend) GenerateToken(ctx context.Context, req TokenRequest) (string, error) {
	b.wait(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenReqs = append(b.tokenReqs, req)
	return b.token, b.tokenErr
}

func (b *fakeBackend) Chat(ctx context.Context, req ChatRequest) (string, error) {
	b.wait(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatReqs = append(b.chatReqs, req)
	return b.reply, b.chatErr
}

func (b *fakeBackend) wait(ctx context.Context) {
	if b.gate == nil {
		return
	}
	select {
	case <-b.gate:
	case <-ctx.Done():
	}
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []Utterance
	stops  int
	err    error
}

func (s *fakeSpeaker) Speak(u Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, u)
	return s.err
}

func (s *fakeSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *fakeSpeaker) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.spoken))
	for _, u := range s.spoken {
		out = append(out, u.Text)
	}
	return out
}

type fakeTones struct {
	mu     sync.Mutex
	digits []string
}

func (f *fakeTones) PlayTone(d string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digits = append(f.digits, d)
}

type harness struct {
	t       *testing.T
	c       *Controller
	sched   *ManualScheduler
	backend *fakeBackend
	speaker *fakeSpeaker
	tones   *fakeTones
	catalog *Catalog
	events  []Event
	evMu    sync.Mutex
}

func newHarness(t *testing.T, backend *fakeBackend) *harness {
	t.Helper()
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}
	h := &harness{
		t:       t,
		sched:   NewManualScheduler(),
		backend: backend,
		speaker: &fakeSpeaker{},
		tones:   &fakeTones{},
		catalog: catalog,
	}
	ids := 0
	c, err := NewController(Options{
		Catalog:   catalog,
		Backend:   backend,
		Tones:     h.tones,
		Speaker:   h.speaker,
		Scheduler: h.sched,
		NewID: func() string {
			ids++
			return "caller-" + string(rune('0'+ids))
		},
		Now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		OnEvent: func(ev Event) {
			h.evMu.Lock()
			h.events = append(h.events, ev)
			h.evMu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	h.c = c
	t.Cleanup(c.Close)
	return h
}

func (h *harness) start() {
	h.t.Helper()
	if err := h.c.StartCall(); err != nil {
		h.t.Fatalf("StartCall() error = %v", err)
	}
	h.sched.Advance(DefaultDelays().Greeting)
}

func (h *harness) press(d string) {
	h.t.Helper()
	if err := h.c.PressDigit(d); err != nil {
		h.t.Fatalf("PressDigit(%q) error = %v", d, err)
	}
}

func (h *harness) say(text string) {
	h.t.Helper()
	if err := h.c.SubmitText(text); err != nil {
		h.t.Fatalf("SubmitText(%q) error = %v", text, err)
	}
}

func (h *harness) settle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.c.Settle(ctx); err != nil {
		h.t.Fatalf("Settle() error = %v", err)
	}
}

func (h *harness) selectEnglish() {
	h.t.Helper()
	h.start()
	h.press("1")
	h.sched.Advance(DefaultDelays().Menu)
}

type entry struct {
	Kind MessageKind
	Text string
}

func entries(msgs []Message) []entry {
	out := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, entry{Kind: m.Kind, Text: m.Text})
	}
	return out
}

func (h *harness) en() Templates {
	return h.catalog.Bundle(LanguageEnglish).Messages
}

func TestStartCallThenEnglishProducesGreetingConfirmationAndMenu(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.selectEnglish()

	snap := h.c.Snapshot()
	want := []entry{
		{KindAssistant, h.catalog.Greeting},
		{KindUser, "Pressed 1"},
		{KindSystem, "English selected."},
		{KindAssistant, h.en().MainMenu},
	}
	if diff := cmp.Diff(want, entries(snap.Transcript)); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
	if !snap.Active || !snap.LanguageConfirmed {
		t.Fatalf("snapshot = %+v, want active and confirmed", snap)
	}
	if snap.Phase != PhaseMainMenu {
		t.Fatalf("Phase = %q, want %q", snap.Phase, PhaseMainMenu)
	}
	if snap.SelectedLanguage != LanguageEnglish {
		t.Fatalf("SelectedLanguage = %q, want %q", snap.SelectedLanguage, LanguageEnglish)
	}
	if snap.ExternalUserID != "caller-1" {
		t.Fatalf("ExternalUserID = %q, want caller-1", snap.ExternalUserID)
	}
	if got := h.speaker.texts(); len(got) != 2 || got[0] != h.catalog.Greeting || got[1] != h.en().MainMenu {
		t.Fatalf("spoken = %q, want greeting then menu", got)
	}
	if len(h.tones.digits) != 1 || h.tones.digits[0] != "1" {
		t.Fatalf("tones = %q, want [1]", h.tones.digits)
	}
}

func TestGreetingIsDelayed(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	if err := h.c.StartCall(); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	if n := len(h.c.Snapshot().Transcript); n != 0 {
		t.Fatalf("transcript length before greeting = %d, want 0", n)
	}
	h.sched.Advance(DefaultDelays().Greeting - time.Millisecond)
	if n := len(h.c.Snapshot().Transcript); n != 0 {
		t.Fatalf("transcript length just before delay = %d, want 0", n)
	}
	h.sched.Advance(time.Millisecond)
	snap := h.c.Snapshot()
	if len(snap.Transcript) != 1 || snap.Phase != PhaseAwaitingLanguage {
		t.Fatalf("snapshot after greeting = %+v", snap)
	}
}

func TestDigitBeforeGreetingAsksToRetry(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	if err := h.c.StartCall(); err != nil {
		t.Fatalf("StartCall() error = %v", err)
	}
	h.press("2")

	snap := h.c.Snapshot()
	if snap.LanguageConfirmed {
		t.Fatalf("LanguageConfirmed = true, want false")
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Kind != KindSystem || last.Text != h.en().InvalidLanguage {
		t.Fatalf("last message = %+v, want retry system message", last)
	}
}

func TestInvalidLanguageDigitKeepsAwaitingLanguage(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.start()
	h.press("5")

	snap := h.c.Snapshot()
	if snap.LanguageConfirmed || snap.Phase != PhaseAwaitingLanguage {
		t.Fatalf("snapshot = %+v, want awaiting language", snap)
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Kind != KindSystem || last.Text != h.en().InvalidLanguage {
		t.Fatalf("last message = %+v, want retry system message", last)
	}

	h.press("3")
	snap = h.c.Snapshot()
	if !snap.LanguageConfirmed || snap.SelectedLanguage != LanguageHaitianCreole {
		t.Fatalf("snapshot = %+v, want Haitian Creole confirmed", snap)
	}
}

func TestLanguageConfirmedOnlyByValidDigit(t *testing.T) {
	for _, tc := range []struct {
		digit string
		want  bool
		lang  Language
	}{
		{"1", true, LanguageEnglish},
		{"2", true, LanguageSpanish},
		{"3", true, LanguageHaitianCreole},
		{"4", false, LanguageEnglish},
		{"8", false, LanguageEnglish},
		{"*", false, LanguageEnglish},
		{"#", false, LanguageEnglish},
	} {
		t.Run(tc.digit, func(t *testing.T) {
			h := newHarness(t, &fakeBackend{})
			h.start()
			h.press(tc.digit)
			snap := h.c.Snapshot()
			if snap.LanguageConfirmed != tc.want {
				t.Fatalf("LanguageConfirmed = %v, want %v", snap.LanguageConfirmed, tc.want)
			}
			if snap.SelectedLanguage != tc.lang {
				t.Fatalf("SelectedLanguage = %q, want %q", snap.SelectedLanguage, tc.lang)
			}
		})
	}
}

func TestLanguageConfirmationNeverReverts(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.selectEnglish()
	h.press("7")
	h.press("3")
	snap := h.c.Snapshot()
	if !snap.LanguageConfirmed || snap.SelectedLanguage != LanguageEnglish {
		t.Fatalf("snapshot = %+v, want English still confirmed", snap)
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Text != h.en().UnrecognizedOption {
		t.Fatalf("last message = %q, want unrecognized option", last.Text)
	}
}

func TestSpanishMenuIsLocalized(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.start()
	h.press("2")
	h.sched.Advance(DefaultDelays().Menu)

	es := h.catalog.Bundle(LanguageSpanish)
	snap := h.c.Snapshot()
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Text != es.Messages.MainMenu {
		t.Fatalf("last message = %q, want Spanish menu", last.Text)
	}
	h.speaker.mu.Lock()
	defer h.speaker.mu.Unlock()
	u := h.speaker.spoken[len(h.speaker.spoken)-1]
	if u.Language != LanguageSpanish || u.Locale != "es-ES" {
		t.Fatalf("utterance = %+v, want Spanish locale", u)
	}
}

func TestTransferTokenSuccess(t *testing.T) {
	backend := &fakeBackend{token: "AB12"}
	h := newHarness(t, backend)
	h.selectEnglish()
	h.press("2")
	h.settle()

	snap := h.c.Snapshot()
	if snap.TransferCode != "AB12" {
		t.Fatalf("TransferCode = %q, want AB12", snap.TransferCode)
	}
	if snap.Processing {
		t.Fatalf("Processing = true after token response")
	}
	count := 0
	for _, m := range snap.Transcript {
		if strings.Contains(m.Text, "AB12") {
			count++
			if m.Kind != KindAssistant {
				t.Fatalf("code message kind = %q, want assistant", m.Kind)
			}
		}
	}
	if count != 1 {
		t.Fatalf("messages containing code = %d, want 1", count)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.tokenReqs) != 1 {
		t.Fatalf("token requests = %d, want 1", len(backend.tokenReqs))
	}
	req := backend.tokenReqs[0]
	if req.UserID != "caller-1" || req.Language != LanguageEnglish {
		t.Fatalf("token request = %+v", req)
	}
	if len(req.Messages) != 5 {
		t.Fatalf("token request carried %d messages, want 5", len(req.Messages))
	}

	tok, ok := h.c.TransferToken()
	if !ok || tok.Code != "AB12" || tok.Language != LanguageEnglish {
		t.Fatalf("TransferToken() = %+v, %v", tok, ok)
	}
}

func TestTransferCodeIsNotReissued(t *testing.T) {
	backend := &fakeBackend{token: "AB12"}
	h := newHarness(t, backend)
	h.selectEnglish()
	h.press("2")
	h.settle()
	backend.mu.Lock()
	backend.token = "ZZ99"
	backend.mu.Unlock()

	h.say("can I continue on the website?")
	h.settle()

	snap := h.c.Snapshot()
	if snap.TransferCode != "AB12" {
		t.Fatalf("TransferCode = %q, want AB12", snap.TransferCode)
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.tokenReqs) != 1 {
		t.Fatalf("token requests = %d, want 1", len(backend.tokenReqs))
	}
}

func TestTransferTokenFailure(t *testing.T) {
	h := newHarness(t, &fakeBackend{tokenErr: errors.New("boom")})
	h.selectEnglish()
	h.press("2")
	h.settle()

	snap := h.c.Snapshot()
	if snap.TransferCode != "" || snap.Processing || !snap.Active {
		t.Fatalf("snapshot = %+v, want active, idle processing, no code", snap)
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Kind != KindSystem || last.Text != h.en().TroubleProcessing {
		t.Fatalf("last message = %+v, want trouble processing", last)
	}
}

func TestProcessingRejectsInput(t *testing.T) {
	backend := &fakeBackend{token: "AB12", gate: make(chan struct{})}
	h := newHarness(t, backend)
	h.selectEnglish()
	h.press("2")

	if !h.c.Snapshot().Processing {
		t.Fatalf("Processing = false while token request outstanding")
	}
	if err := h.c.PressDigit("0"); !errors.Is(err, ErrProcessing) {
		t.Fatalf("PressDigit() error = %v, want ErrProcessing", err)
	}
	if err := h.c.SubmitText("hello"); !errors.Is(err, ErrProcessing) {
		t.Fatalf("SubmitText() error = %v, want ErrProcessing", err)
	}

	close(backend.gate)
	h.settle()
	if h.c.Snapshot().Processing {
		t.Fatalf("Processing = true after request finished")
	}
}

func TestSettleTimeoutLeavesNoWaiter(t *testing.T) {
	backend := &fakeBackend{reply: "ok", gate: make(chan struct{})}
	h := newHarness(t, backend)
	h.selectEnglish()
	h.say("when is the library open")

	running := goleak.IgnoreCurrent()
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		err := h.c.Settle(ctx)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Settle() error = %v, want %v", err, context.DeadlineExceeded)
		}
	}
	goleak.VerifyNone(t, running)

	close(backend.gate)
	h.settle()
	if h.c.Snapshot().Processing {
		t.Fatalf("Processing = true after request finished")
	}
}

func TestResultIgnoredAfterReset(t *testing.T) {
	backend := &fakeBackend{token: "AB12", gate: make(chan struct{})}
	h := newHarness(t, backend)
	h.selectEnglish()
	h.press("2")
	h.c.ResetDemo()
	close(backend.gate)
	h.settle()

	snap := h.c.Snapshot()
	if snap.TransferCode != "" || len(snap.Transcript) != 0 || snap.Processing {
		t.Fatalf("snapshot after reset = %+v, want empty", snap)
	}
}

func TestHangUpDigitsEndCall(t *testing.T) {
	for _, digit := range []string{"0", "9"} {
		for _, confirmed := range []bool{false, true} {
			h := newHarness(t, &fakeBackend{})
			if confirmed {
				h.selectEnglish()
			} else {
				h.start()
			}
			h.press(digit)

			snap := h.c.Snapshot()
			if snap.Active || snap.Phase != PhaseIdle {
				t.Fatalf("digit %s confirmed=%v: snapshot = %+v, want inactive", digit, confirmed, snap)
			}
			last := snap.Transcript[len(snap.Transcript)-1]
			if last.Kind != KindAssistant || last.Text != h.en().Goodbye {
				t.Fatalf("last message = %+v, want goodbye", last)
			}
			if err := h.c.PressDigit("1"); !errors.Is(err, ErrCallInactive) {
				t.Fatalf("PressDigit() after hang up error = %v, want ErrCallInactive", err)
			}
		}
	}
}

func TestGoodbyePhraseEndsCall(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.selectEnglish()
	h.say("OK, Goodbye")

	snap := h.c.Snapshot()
	if snap.Active {
		t.Fatalf("Active = true after goodbye")
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Text != h.en().Goodbye {
		t.Fatalf("last message = %q, want goodbye", last.Text)
	}
}

func TestAgentTransferAfterDelay(t *testing.T) {
	for _, trigger := range []func(h *harness){
		func(h *harness) { h.press("1") },
		func(h *harness) { h.say("I want to talk to a human please") },
	} {
		h := newHarness(t, &fakeBackend{})
		h.selectEnglish()
		trigger(h)

		snap := h.c.Snapshot()
		if !snap.Active || !snap.Processing {
			t.Fatalf("snapshot during hand-off = %+v, want active and processing", snap)
		}
		last := snap.Transcript[len(snap.Transcript)-1]
		if last.Text != h.en().ConnectingAgent {
			t.Fatalf("last message = %q, want connecting", last.Text)
		}

		h.sched.Advance(DefaultDelays().AgentTransfer)
		snap = h.c.Snapshot()
		if snap.Active || snap.Processing {
			t.Fatalf("snapshot after hand-off = %+v, want inactive", snap)
		}
		last = snap.Transcript[len(snap.Transcript)-1]
		if last.Kind != KindSystem || last.Text != h.en().AgentTransferred {
			t.Fatalf("last message = %+v, want transferred", last)
		}
	}
}

func TestIntentPriorityGoodbyeBeatsAgent(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.selectEnglish()
	h.say("no need for an agent, goodbye")
	if h.c.Snapshot().Active {
		t.Fatalf("Active = true, want goodbye to win over agent")
	}
	if h.sched.Pending() != 0 {
		t.Fatalf("pending timers = %d, want 0", h.sched.Pending())
	}
}

func TestChatReplyIsSpokenAndFollowedByPrompt(t *testing.T) {
	backend := &fakeBackend{reply: "Trash pickup is on Tuesdays."}
	h := newHarness(t, backend)
	h.selectEnglish()
	h.say("When is trash pickup?")
	h.settle()

	snap := h.c.Snapshot()
	got := entries(snap.Transcript[len(snap.Transcript)-3:])
	want := []entry{
		{KindUser, "When is trash pickup?"},
		{KindAssistant, "Trash pickup is on Tuesdays."},
		{KindAssistant, h.en().AnythingElse},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("transcript tail mismatch (-want +got):\n%s", diff)
	}
	spoken := h.speaker.texts()
	if spoken[len(spoken)-1] != h.en().AnythingElse {
		t.Fatalf("last spoken = %q, want anything-else prompt", spoken[len(spoken)-1])
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	req := backend.chatReqs[0]
	if req.SessionID != "caller-1" || req.Language != LanguageEnglish {
		t.Fatalf("chat request = %+v", req)
	}
	for _, m := range req.Messages {
		if m.Role == string(KindSystem) {
			t.Fatalf("chat request carried a system message: %+v", m)
		}
	}
}

func TestNonEnglishFreeTextReachesChat(t *testing.T) {
	tests := []struct {
		name  string
		digit string
		lang  Language
		text  string
	}{
		{"haitian how much", "3", LanguageHaitianCreole, "Konbyen lajan pou yon patant?"},
		{"haitian how many", "3", LanguageHaitianCreole, "Konbyen moun ki ka vote?"},
		{"haitian well", "3", LanguageHaitianCreole, "Mwen byen. Ki lè biwo a louvri?"},
		{"spanish bank transfer", "2", LanguageSpanish, "Quiero hacer una transferencia bancaria"},
		{"spanish personal info", "2", LanguageSpanish, "Necesito mi información personal del permiso"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{reply: "ok"}
			h := newHarness(t, backend)
			h.start()
			h.press(tc.digit)
			h.sched.Advance(DefaultDelays().Menu)
			h.say(tc.text)
			h.settle()

			snap := h.c.Snapshot()
			if !snap.Active || snap.TransferCode != "" {
				t.Fatalf("snapshot = %+v, want active call without transfer code", snap)
			}
			last := snap.Transcript[len(snap.Transcript)-1]
			if want := h.catalog.Bundle(tc.lang).Messages.AnythingElse; last.Text != want {
				t.Fatalf("last message = %q, want %q", last.Text, want)
			}

			backend.mu.Lock()
			defer backend.mu.Unlock()
			if len(backend.chatReqs) != 1 || len(backend.tokenReqs) != 0 {
				t.Fatalf("chat requests = %d, token requests = %d, want 1 and 0", len(backend.chatReqs), len(backend.tokenReqs))
			}
			if backend.chatReqs[0].Language != tc.lang {
				t.Fatalf("chat language = %q, want %q", backend.chatReqs[0].Language, tc.lang)
			}
		})
	}
}

func TestEnglishGoodbyeStillEndsNonEnglishCall(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.start()
	h.press("3")
	h.sched.Advance(DefaultDelays().Menu)
	h.say("ok, bye!")

	if snap := h.c.Snapshot(); snap.Active {
		t.Fatalf("snapshot = %+v, want call ended", snap)
	}
}

func TestChatFailureKeepsCallActive(t *testing.T) {
	h := newHarness(t, &fakeBackend{chatErr: errors.New("network down")})
	h.selectEnglish()
	h.say("What are city hall hours?")
	h.settle()

	snap := h.c.Snapshot()
	if snap.Processing || !snap.Active {
		t.Fatalf("snapshot = %+v, want active and not processing", snap)
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Kind != KindSystem || last.Text != h.en().TroubleProcessing {
		t.Fatalf("last message = %+v, want trouble processing", last)
	}
	if err := h.c.SubmitText("try again"); err != nil {
		t.Fatalf("SubmitText() after failure error = %v", err)
	}
	h.settle()
}

func TestEndCallStopsSpeechAndAppendsEnded(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.selectEnglish()
	if err := h.c.EndCall(); err != nil {
		t.Fatalf("EndCall() error = %v", err)
	}
	snap := h.c.Snapshot()
	if snap.Active {
		t.Fatalf("Active = true after EndCall")
	}
	if h.speaker.stops == 0 {
		t.Fatalf("speaker was not stopped")
	}
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Kind != KindSystem || last.Text != h.en().CallEnded {
		t.Fatalf("last message = %+v, want call ended", last)
	}
	if err := h.c.EndCall(); err != nil {
		t.Fatalf("second EndCall() error = %v", err)
	}
	if n := len(h.c.Snapshot().Transcript); n != len(snap.Transcript) {
		t.Fatalf("second EndCall appended messages: %d != %d", n, len(snap.Transcript))
	}
}

func TestEndCallCancelsPendingMenu(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.start()
	h.press("1")
	if err := h.c.EndCall(); err != nil {
		t.Fatalf("EndCall() error = %v", err)
	}
	before := len(h.c.Snapshot().Transcript)
	h.sched.Advance(time.Minute)
	if after := len(h.c.Snapshot().Transcript); after != before {
		t.Fatalf("transcript grew after hang up: %d -> %d", before, after)
	}
}

func TestResetDemoIsIdempotent(t *testing.T) {
	h := newHarness(t, &fakeBackend{token: "AB12"})
	h.c.SetAudioEnabled(false)
	h.selectEnglish()
	h.press("2")
	h.settle()

	h.c.ResetDemo()
	once := h.c.Snapshot()
	h.c.ResetDemo()
	twice := h.c.Snapshot()

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second reset changed state (-once +twice):\n%s", diff)
	}
	want := Session{Phase: PhaseIdle, SelectedLanguage: LanguageEnglish}
	if diff := cmp.Diff(want, once); diff != "" {
		t.Fatalf("reset state mismatch (-want +got):\n%s", diff)
	}
}

func TestResetPreservesAudioPreference(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.c.SetAudioEnabled(false)
	h.c.ResetDemo()
	if h.c.Snapshot().AudioEnabled {
		t.Fatalf("AudioEnabled = true after reset, want preserved false")
	}
}

func TestAudioDisabledSkipsTonesAndSpeech(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.c.SetAudioEnabled(false)
	h.selectEnglish()
	if len(h.tones.digits) != 0 {
		t.Fatalf("tones played with audio disabled: %q", h.tones.digits)
	}
	if got := h.speaker.texts(); len(got) != 0 {
		t.Fatalf("speech with audio disabled: %q", got)
	}
}

func TestSpeechFailureDoesNotInterruptTranscript(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.speaker.err = errors.New("no voices")
	h.selectEnglish()
	if n := len(h.c.Snapshot().Transcript); n != 4 {
		t.Fatalf("transcript length = %d, want 4", n)
	}
}

func TestMessageLogFailuresAreSwallowed(t *testing.T) {
	backend := &fakeBackend{logErr: errors.New("db down")}
	h := newHarness(t, backend)
	h.selectEnglish()
	h.c.Close()

	if n := len(h.c.Snapshot().Transcript); n != 4 {
		t.Fatalf("transcript length = %d, want 4", n)
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.logged) != 4 {
		t.Fatalf("log writes = %d, want 4", len(backend.logged))
	}
	for _, l := range backend.logged {
		if l.UserID != "caller-1" {
			t.Fatalf("log write user = %q, want caller-1", l.UserID)
		}
	}
}

func TestTranscriptEventsMatchAppendOrder(t *testing.T) {
	h := newHarness(t, &fakeBackend{reply: "Sure."})
	h.selectEnglish()
	h.say("help")
	h.settle()

	var fromEvents []Message
	h.evMu.Lock()
	for _, ev := range h.events {
		if ev.Type == EventMessage {
			fromEvents = append(fromEvents, ev.Message)
		}
	}
	h.evMu.Unlock()
	if diff := cmp.Diff(h.c.Snapshot().Transcript, fromEvents); diff != "" {
		t.Fatalf("event order differs from transcript (-transcript +events):\n%s", diff)
	}
}

func TestInputValidation(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	if err := h.c.PressDigit("1"); !errors.Is(err, ErrCallInactive) {
		t.Fatalf("PressDigit() before start error = %v, want ErrCallInactive", err)
	}
	h.start()
	if err := h.c.StartCall(); !errors.Is(err, ErrCallActive) {
		t.Fatalf("StartCall() twice error = %v, want ErrCallActive", err)
	}
	if err := h.c.PressDigit("12"); !errors.Is(err, ErrInvalidDigit) {
		t.Fatalf("PressDigit(12) error = %v, want ErrInvalidDigit", err)
	}
	if err := h.c.SubmitText("   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("SubmitText(blank) error = %v, want ErrEmptyText", err)
	}
}

func TestLanguageByTextWhileAwaitingLanguage(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.start()
	h.say("Español por favor")
	snap := h.c.Snapshot()
	if !snap.LanguageConfirmed || snap.SelectedLanguage != LanguageSpanish {
		t.Fatalf("snapshot = %+v, want Spanish confirmed", snap)
	}
}

func TestNewCallStartsFreshSession(t *testing.T) {
	h := newHarness(t, &fakeBackend{token: "AB12"})
	h.selectEnglish()
	h.press("2")
	h.settle()
	h.press("9")
	h.start()

	snap := h.c.Snapshot()
	if snap.TransferCode != "" || snap.LanguageConfirmed || snap.ExternalUserID != "caller-2" {
		t.Fatalf("snapshot = %+v, want fresh session", snap)
	}
	if len(snap.Transcript) != 1 {
		t.Fatalf("transcript length = %d, want greeting only", len(snap.Transcript))
	}
}

func TestCloseRejectsFurtherInput(t *testing.T) {
	h := newHarness(t, &fakeBackend{})
	h.c.Close()
	if err := h.c.StartCall(); !errors.Is(err, ErrClosed) {
		t.Fatalf("StartCall() after Close error = %v, want ErrClosed", err)
	}
}

func TestNewControllerRequiresBackend(t *testing.T) {
	if _, err := NewController(Options{}); err == nil {
		t.Fatalf("NewController() without backend error = nil")
	}
}
