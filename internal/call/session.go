package call

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/alakhotia160011/voxbharat-sub000/internal/audio"
	"github.com/alakhotia160011/voxbharat-sub000/internal/models"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/convo"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/stt"
	"github.com/alakhotia160011/voxbharat-sub000/internal/providers/tts"
	"github.com/alakhotia160011/voxbharat-sub000/internal/turnpolicy"
)

var (
	ErrDuplicateCall   = errors.New("call: id already registered")
	ErrDuplicateStream = errors.New("call: stream id already registered")
	ErrUnknownCall     = errors.New("call: unknown call id")
)

const (
	defaultSilenceTimeout = 8 * time.Second
	hesitationExtension   = 6 * time.Second
	defaultFrameDelay     = 20 * time.Millisecond
	recentSpokenKeep      = 5
)

// Recognizer is the streaming STT surface the session drives.
// *stt.Session satisfies it; tests substitute a fake.
type Recognizer interface {
	Events() <-chan stt.Event
	SendAudio(pcm []byte) error
	Flush() error
	SwitchLanguage(ctx context.Context, language string) error
	Close() error
}

// Outbound is the telephony leg's write side: mu-law frames out, and
// a hangup control. The media WS handler implements it.
type Outbound interface {
	SendAudioFrame(mulaw []byte) error
	Hangup() error
}

// GreetingCache holds pre-synthesized greeting audio keyed by call id.
type GreetingCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Deps are the session's external collaborators, injected once.
type Deps struct {
	TTS      tts.Synthesizer
	Convo    convo.Provider
	Fallback *convo.Scripted

	ConnectRecognizer func(ctx context.Context, language string) (Recognizer, error)

	Greetings GreetingCache
	Archive   func(ctx context.Context, rec *models.CallRecord) error

	// OnCompleted tells the scheduler how the call ended. Called once,
	// after archival, never from under the session mutex.
	OnCompleted func(callID, campaignID string, status models.CallStatus)

	Registry *Registry
	Logger   *logrus.Logger

	// FrameDelay paces outbound frames; zero means the 20 ms default,
	// negative disables pacing (tests).
	FrameDelay     time.Duration
	SilenceTimeout time.Duration
}

// Config is the per-call shape of a session.
type Config struct {
	CallID     string
	CampaignID string
	Phone      string

	Language        string // requested language
	DefaultLanguage string
	DetectLanguage  bool
	VoiceGender     string
	Questions       []models.Question
}

// Session owns one phone call end to end: it wires the codec,
// recognizer, synthesizer and turn policy together against the
// telephony media stream.
type Session struct {
	ID         string
	CampaignID string
	Phone      string

	cfg  Config
	deps Deps
	log  *logrus.Entry

	mu               sync.Mutex
	status           models.CallStatus
	telephonyCallID  string
	streamSID        string
	detectedLanguage string
	transcript       []models.TranscriptEntry
	answers          map[string]any

	out        Outbound
	recognizer Recognizer
	recentSpoken []string
	lastPrompt   string
	speaking     bool
	acceptAudio  bool

	silence *time.Timer

	startedAt   time.Time
	connectedAt *time.Time
	endedAt     *time.Time

	finishOnce sync.Once
	done       chan struct{}
}

func NewSession(cfg Config, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.SilenceTimeout == 0 {
		deps.SilenceTimeout = defaultSilenceTimeout
	}
	if cfg.Language == "" {
		cfg.Language = cfg.DefaultLanguage
	}

	s := &Session{
		ID:         cfg.CallID,
		CampaignID: cfg.CampaignID,
		Phone:      cfg.Phone,
		cfg:        cfg,
		deps:       deps,
		status:     models.CallInitiating,
		answers:    map[string]any{},
		startedAt:  time.Now().UTC(),
		done:       make(chan struct{}),
	}
	s.log = deps.Logger.WithFields(logrus.Fields{
		"call_id":     cfg.CallID,
		"campaign_id": cfg.CampaignID,
	})
	return s
}

func (s *Session) Status() models.CallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

func (s *Session) TelephonyCallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telephonyCallID
}

// SetTelephonyCallID binds the carrier's call identifier once the
// carrier assigns it.
func (s *Session) SetTelephonyCallID(id string) {
	s.mu.Lock()
	s.telephonyCallID = id
	s.mu.Unlock()
}

// language returns the language to synthesize in right now.
func (s *Session) language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.languageLocked()
}

func (s *Session) languageLocked() string {
	if s.detectedLanguage != "" {
		return s.detectedLanguage
	}
	if s.cfg.Language != "" {
		return s.cfg.Language
	}
	return s.cfg.DefaultLanguage
}

// setStatus applies a transition and refuses lifecycle regressions.
func (s *Session) setStatus(next models.CallStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.CanTransitionTo(next) {
		return false
	}
	s.status = next
	return true
}

// OnRinging marks the call ringing and pre-synthesizes the greeting so
// it plays with no latency on pickup.
func (s *Session) OnRinging(ctx context.Context) {
	if !s.setStatus(models.CallRinging) {
		return
	}

	greeting := s.respondWithFallback(ctx, nil, "")
	pcm, err := s.synthesizeOnce(ctx, greeting)
	if err != nil {
		s.log.WithError(err).Warn("greeting pre-synthesis failed, will synthesize on pickup")
		return
	}

	s.mu.Lock()
	s.lastPrompt = greeting
	s.mu.Unlock()

	if s.deps.Greetings != nil {
		if err := s.deps.Greetings.SetBytes(ctx, greetingKey(s.ID), pcm, 5*time.Minute); err != nil {
			s.log.WithError(err).Warn("greeting cache write failed")
		}
	}
}

func greetingKey(callID string) string { return "call:" + callID + ":greeting" }

// claimStream reserves the stream id; a session accepts exactly one
// stream over its lifetime. Called under the registry lock.
func (s *Session) claimStream(streamSID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamSID != "" {
		return ErrDuplicateStream
	}
	s.streamSID = streamSID
	return nil
}

// AttachStream binds the telephony media stream: connects the
// recognizer, plays the greeting, and starts consuming transcripts.
// The stream id is normally claimed through the registry first.
func (s *Session) AttachStream(ctx context.Context, out Outbound, telephonyCallID, streamSID string) error {
	s.mu.Lock()
	if s.out != nil || (s.streamSID != "" && s.streamSID != streamSID) {
		s.mu.Unlock()
		return ErrDuplicateStream
	}
	s.out = out
	s.telephonyCallID = telephonyCallID
	s.streamSID = streamSID
	now := time.Now().UTC()
	s.connectedAt = &now
	s.mu.Unlock()

	s.setStatus(models.CallConnected)

	recLang := s.cfg.Language
	if s.cfg.DetectLanguage {
		recLang = "" // provider-side auto-detect
	}
	rec, err := s.deps.ConnectRecognizer(ctx, recLang)
	if err != nil {
		// degrade: the call continues without recognition; the silence
		// timer will walk the script
		s.log.WithError(err).Error("recognizer connect failed, continuing scripted")
	} else {
		s.mu.Lock()
		s.recognizer = rec
		s.mu.Unlock()
		go s.consumeTranscripts(rec)
	}

	s.mu.Lock()
	s.acceptAudio = true
	s.mu.Unlock()

	go s.playGreeting(ctx)
	return nil
}

func (s *Session) playGreeting(ctx context.Context) {
	var pcm []byte
	if s.deps.Greetings != nil {
		if cached, ok, err := s.deps.Greetings.GetBytes(ctx, greetingKey(s.ID)); err == nil && ok {
			pcm = cached
		}
	}

	greeting := s.lastPromptText()
	if greeting == "" {
		greeting = s.respondWithFallback(ctx, nil, "")
	}

	if pcm == nil {
		var err error
		pcm, err = s.synthesizeWithRetry(ctx, greeting)
		if err != nil {
			s.log.WithError(err).Error("greeting synthesis failed")
		}
	}

	s.speakPCM(ctx, greeting, pcm)
	s.setStatus(models.CallInProgress)
	s.resetSilenceTimer(s.deps.SilenceTimeout)
}

func (s *Session) lastPromptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrompt
}

// OnMedia feeds one inbound mu-law payload through the codec into the
// recognizer. Frames are processed in arrival order.
func (s *Session) OnMedia(payload []byte) {
	s.mu.Lock()
	rec := s.recognizer
	accept := s.acceptAudio
	s.mu.Unlock()

	if !accept || rec == nil {
		return
	}

	pcm := audio.DecodeMuLawToPCM16k(payload)
	if err := rec.SendAudio(audio.PCMToBytes(pcm)); err != nil && !errors.Is(err, stt.ErrNotConnected) {
		s.log.WithError(err).Debug("recognizer write failed")
	}
}

// OnTelephonyStatus reacts to carrier status callbacks.
func (s *Session) OnTelephonyStatus(status string) {
	switch status {
	case "ringing", "initiated":
		s.OnRinging(context.Background())
	case "no-answer", "busy":
		s.Finish(models.CallNoAnswer)
	case "failed", "canceled":
		s.Finish(models.CallFailed)
	case "completed":
		s.Hangup()
	}
}

// Hangup finalizes after the far end (or the carrier) ended the call.
func (s *Session) Hangup() {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	switch st {
	case models.CallInProgress, models.CallCompleted:
		s.Finish(models.CallCompleted)
	case models.CallVoicemail:
		s.Finish(models.CallVoicemail)
	case models.CallConnected:
		s.Finish(models.CallCompleted)
	default:
		s.Finish(models.CallFailed)
	}
}

func (s *Session) consumeTranscripts(rec Recognizer) {
	for ev := range rec.Events() {
		switch ev.Type {
		case stt.EventFinal:
			s.handleFinalTranscript(ev.Text, ev.Language)
		case stt.EventError:
			// graceful degradation: log and keep the call alive
			s.log.WithError(ev.Err).Warn("recognizer error, continuing with gaps")
		}
	}
}

func (s *Session) handleFinalTranscript(text, language string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	norm := turnpolicy.Normalize(text)
	if norm == "" {
		return
	}

	s.mu.Lock()
	recent := append([]string(nil), s.recentSpoken...)
	speaking := s.speaking
	status := s.status
	firstUtterance := true
	for _, e := range s.transcript {
		if e.Role == "respondent" {
			firstUtterance = false
			break
		}
	}
	s.mu.Unlock()

	if status.Terminal() {
		return
	}

	if s.cfg.DetectLanguage && language != "" {
		s.mu.Lock()
		if s.detectedLanguage == "" {
			s.detectedLanguage = language
			s.log.WithField("language", language).Info("detected respondent language")
		}
		s.mu.Unlock()
	}

	if turnpolicy.IsLikelyEcho(norm, recent) {
		s.log.WithField("text", norm).Debug("discarding echo")
		return
	}

	// answering machines identify themselves in their first utterance
	if firstUtterance && isVoicemailGreeting(norm) {
		s.log.Info("answering machine detected")
		s.setStatus(models.CallVoicemail)
		s.Finish(models.CallVoicemail)
		return
	}

	if speaking && (turnpolicy.IsBackchannel(norm) || turnpolicy.IsHesitation(norm)) {
		// active listening; let playback continue
		return
	}

	if turnpolicy.IsHesitation(norm) {
		// thinking out loud: give the respondent more room
		s.resetSilenceTimer(s.deps.SilenceTimeout + hesitationExtension)
		return
	}

	if turnpolicy.IsRepeatRequest(norm) {
		s.appendTranscript("respondent", text)
		if prompt := s.lastPromptText(); prompt != "" {
			s.speak(ctx, prompt)
		}
		s.resetSilenceTimer(s.deps.SilenceTimeout)
		return
	}

	s.appendTranscript("respondent", text)
	s.advance(ctx, text)
}

// advance asks the conversation function for the next utterance and
// plays it. A reply carrying the end token wraps the survey up.
func (s *Session) advance(ctx context.Context, utterance string) {
	reply := s.respondWithFallback(ctx, s.history(), utterance)

	finished := strings.Contains(reply, convo.EndToken)
	reply = strings.TrimSpace(strings.ReplaceAll(reply, convo.EndToken, ""))

	if reply != "" {
		s.speak(ctx, reply)
	}

	if finished {
		s.Finish(models.CallCompleted)
		return
	}
	s.resetSilenceTimer(s.deps.SilenceTimeout)
}

// respondWithFallback retries the conversation function once, then
// falls back to the deterministic script so the respondent never hears
// silence.
func (s *Session) respondWithFallback(ctx context.Context, history []convo.Turn, utterance string) string {
	reply, err := s.deps.Convo.Respond(ctx, history, utterance)
	if err == nil {
		return reply
	}
	s.log.WithError(err).Warn("conversation function failed, retrying once")

	reply, err = s.deps.Convo.Respond(ctx, history, utterance)
	if err == nil {
		return reply
	}
	s.log.WithError(err).Error("conversation function failed twice, using scripted fallback")

	spoken := 0
	for _, t := range s.history() {
		if t.Role == "interviewer" {
			spoken++
		}
	}
	return s.deps.Fallback.NextQuestion(spoken)
}

func (s *Session) history() []convo.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]convo.Turn, len(s.transcript))
	for i, e := range s.transcript {
		turns[i] = convo.Turn{Role: e.Role, Text: e.Text}
	}
	return turns
}

func (s *Session) appendTranscript(role, text string) {
	s.mu.Lock()
	s.transcript = append(s.transcript, models.TranscriptEntry{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	s.mu.Unlock()
}

// speak synthesizes and streams one interviewer utterance.
func (s *Session) speak(ctx context.Context, text string) {
	pcm, err := s.synthesizeWithRetry(ctx, text)
	if err != nil {
		s.log.WithError(err).Error("synthesis failed twice, skipping utterance audio")
	}
	s.speakPCM(ctx, text, pcm)
}

// speakPCM records the utterance and paces its frames onto the wire.
func (s *Session) speakPCM(ctx context.Context, text string, pcm []byte) {
	if text == "" {
		return
	}

	s.mu.Lock()
	s.speaking = true
	s.lastPrompt = text
	s.recentSpoken = append(s.recentSpoken, text)
	if len(s.recentSpoken) > recentSpokenKeep {
		s.recentSpoken = s.recentSpoken[len(s.recentSpoken)-recentSpokenKeep:]
	}
	out := s.out
	s.mu.Unlock()

	s.appendTranscript("interviewer", text)

	defer func() {
		s.mu.Lock()
		s.speaking = false
		s.mu.Unlock()
	}()

	if out == nil || len(pcm) == 0 {
		return
	}

	mulaw := audio.EncodePCM8kToMuLaw(audio.BytesToPCM(pcm))
	delay := s.deps.FrameDelay
	if delay == 0 {
		delay = defaultFrameDelay
	}

	for _, frame := range tts.Chunk(mulaw, tts.FrameSize) {
		select {
		case <-s.done:
			return
		default:
		}
		if err := out.SendAudioFrame(frame); err != nil {
			s.log.WithError(err).Debug("media write failed, stopping playback")
			return
		}
		if delay > 0 {
			select {
			case <-s.done:
				return
			case <-time.After(delay):
			}
		}
	}
}

func (s *Session) synthesizeWithRetry(ctx context.Context, text string) ([]byte, error) {
	pcm, err := s.synthesizeOnce(ctx, text)
	if err == nil {
		return pcm, nil
	}
	s.log.WithError(err).Warn("synthesis failed, retrying once")
	return s.synthesizeOnce(ctx, text)
}

func (s *Session) synthesizeOnce(ctx context.Context, text string) ([]byte, error) {
	lang := s.language()
	return s.deps.TTS.Synthesize(ctx, text, lang, tts.VoiceFor(s.cfg.VoiceGender, lang))
}

// resetSilenceTimer (re)arms the timer that advances the conversation
// when the respondent goes quiet.
func (s *Session) resetSilenceTimer(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	if s.silence != nil {
		s.silence.Stop()
	}
	s.silence = time.AfterFunc(d, s.onSilence)
}

func (s *Session) onSilence() {
	s.mu.Lock()
	terminal := s.status.Terminal()
	speaking := s.speaking
	s.mu.Unlock()
	if terminal {
		return
	}
	if speaking {
		s.resetSilenceTimer(s.deps.SilenceTimeout)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// flush buffered audio first: the respondent may have answered
	// without the provider finalizing yet
	s.mu.Lock()
	rec := s.recognizer
	s.mu.Unlock()
	if rec != nil {
		_ = rec.Flush()
	}

	s.log.Debug("silence timeout, advancing conversation")
	s.advance(ctx, "")
}

// Finish drives the terminal path exactly once: stop audio, close the
// recognizer gracefully, extract answers, archive, deregister, and
// notify the scheduler.
func (s *Session) Finish(status models.CallStatus) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		if s.status.CanTransitionTo(status) {
			s.status = status
		}
		final := s.status
		s.acceptAudio = false
		if s.silence != nil {
			s.silence.Stop()
		}
		rec := s.recognizer
		out := s.out
		now := time.Now().UTC()
		s.endedAt = &now
		s.mu.Unlock()

		close(s.done)

		if rec != nil {
			_ = rec.Close()
		}
		if out != nil {
			_ = out.Hangup()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if final == models.CallCompleted {
			s.extractAnswers(ctx)
		}
		s.archive(ctx, final)

		if s.deps.Registry != nil {
			s.deps.Registry.Remove(s.ID)
		}
		if s.deps.OnCompleted != nil {
			s.deps.OnCompleted(s.ID, s.CampaignID, final)
		}

		if s.deps.Greetings != nil {
			_ = s.deps.Greetings.Del(ctx, greetingKey(s.ID))
		}

		s.log.WithField("status", final).Info("call finished")
	})
}

func (s *Session) extractAnswers(ctx context.Context) {
	answers, err := s.deps.Convo.Extract(ctx, s.history())
	if err != nil {
		s.log.WithError(err).Warn("extraction failed, retrying once")
		answers, err = s.deps.Convo.Extract(ctx, s.history())
	}
	if err != nil {
		s.log.WithError(err).Error("extraction failed twice, archiving without answers")
		return
	}

	s.mu.Lock()
	s.answers = answers
	s.mu.Unlock()
}

func (s *Session) archive(ctx context.Context, final models.CallStatus) {
	if s.deps.Archive == nil {
		return
	}

	rec := s.Record(final)
	if err := s.deps.Archive(ctx, rec); err != nil {
		s.log.WithError(err).Error("call archive failed")
		return
	}

	s.mu.Lock()
	if s.status == models.CallCompleted {
		s.status = models.CallSaved
	}
	s.mu.Unlock()
}

// Record snapshots the session into its durable form.
func (s *Session) Record(status models.CallStatus) *models.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	answers := make(bson.M, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}

	return &models.CallRecord{
		CallID:           s.ID,
		CampaignID:       s.CampaignID,
		Phone:            s.Phone,
		Language:         s.languageLocked(),
		DetectedLanguage: s.detectedLanguage,
		VoiceGender:      s.cfg.VoiceGender,
		Status:           status,
		Transcript:       append([]models.TranscriptEntry(nil), s.transcript...),
		Answers:          answers,
		StartedAt:        s.startedAt,
		ConnectedAt:      s.connectedAt,
		EndedAt:          s.endedAt,
	}
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []models.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TranscriptEntry(nil), s.transcript...)
}

var voicemailPhrases = []string{
	"leave a message",
	"after the beep",
	"after the tone",
	"voicemail",
	"voice mail",
	"is not available",
	"not reachable",
	"currently unavailable",
	"abhi uplabdh nahi",
	"sampark nahi ho",
	"call nahi utha",
	"message chhodein",
	"beep ke baad",
}

func isVoicemailGreeting(norm string) bool {
	for _, p := range voicemailPhrases {
		if strings.Contains(norm, p) {
			return true
		}
	}
	return false
}
