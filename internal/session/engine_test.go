package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/pouncehq/onboard/internal/extract"
	"github.com/pouncehq/onboard/internal/schema"
	"github.com/pouncehq/onboard/internal/store"
	"github.com/pouncehq/onboard/internal/store/sqlite"
	"github.com/pouncehq/onboard/pkg/models"
)

// scriptedCaller returns queued outcomes in order and records requests.
type scriptedCaller struct {
	outcomes []*extract.Outcome
	calls    int
	lastReq  extract.Request
}

func (s *scriptedCaller) Call(ctx context.Context, req extract.Request) *extract.Outcome {
	s.lastReq = req
	out := s.outcomes[s.calls]
	s.calls++
	return out
}

func (s *scriptedCaller) push(outs ...*extract.Outcome) {
	s.outcomes = append(s.outcomes, outs...)
}

func success(reply string, extracted map[string]string) *extract.Outcome {
	if extracted == nil {
		extracted = map[string]string{}
	}
	return &extract.Outcome{
		Reply:     reply,
		Extracted: extracted,
		Meta:      models.ProviderMetadata{Provider: "fake", Attempts: 1},
	}
}

func degraded() *extract.Outcome {
	return &extract.Outcome{
		Reply:     schema.DegradedReply,
		Extracted: map[string]string{},
		Degraded:  true,
		Meta:      models.ProviderMetadata{Provider: "none", Attempts: 2, Degraded: true},
	}
}

// EngineSuite runs the state machine against a real SQLite store.
type EngineSuite struct {
	suite.Suite
	store  *sqlite.Store
	caller *scriptedCaller
	engine *Engine
}

func (s *EngineSuite) SetupTest() {
	st, err := sqlite.Open(sqlite.Config{Path: filepath.Join(s.T().TempDir(), "onboard.db")})
	s.Require().NoError(err)
	s.store = st
	s.caller = &scriptedCaller{}
	s.engine = NewEngine(st, s.caller, extract.NewWindow(0))
}

func (s *EngineSuite) TearDownTest() {
	_ = s.store.Close()
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) TestStart() {
	ctx := context.Background()
	res, err := s.engine.Start(ctx, "u1")
	s.Require().NoError(err)
	s.NotEmpty(res.SessionID)
	s.Equal("Hey, what do we call you?", res.Prompt)

	view, err := s.engine.Get(ctx, res.SessionID)
	s.Require().NoError(err)
	s.Equal(models.SessionStatusInProgress, view.Session.Status)
	s.Empty(view.Session.Profile)
	s.Zero(view.Session.MessageCount)
	s.Require().Len(view.Messages, 1)
	s.Equal(models.RoleAssistant, view.Messages[0].Role)
	s.Equal(res.Prompt, view.Messages[0].Content)
}

// TestFullConversation walks the five required fields to completion, skipping
// the optional extra_preferences field.
func (s *EngineSuite) TestFullConversation() {
	ctx := context.Background()
	res, err := s.engine.Start(ctx, "u1")
	s.Require().NoError(err)
	sid := res.SessionID

	steps := []struct {
		answer    string
		extracted map[string]string
	}{
		{"My name is Ann", map[string]string{"name": "Ann"}},
		{"Backend roles", map[string]string{"role": "Backend Developer"}},
		{"About 6 years", map[string]string{"experience_level": "Senior"}},
		{"Remote", map[string]string{"location": "Remote"}},
		{"Early stage for sure", map[string]string{"startup_stage": "Early"}},
	}

	for i, step := range steps {
		s.caller.push(success("next question please", step.extracted))
		ans, err := s.engine.SubmitAnswer(ctx, sid, step.answer)
		s.Require().NoError(err)

		if i < len(steps)-1 {
			s.False(ans.IsComplete, "step %d should not complete", i)
			s.Equal("next question please", ans.Reply)
		} else {
			s.True(ans.IsComplete)
			s.Equal(schema.CompletionMessage, ans.Reply)
			s.Equal(schema.CompletionAnimation, ans.CompletionMessage)
			s.Equal("Ann", ans.Profile["name"])
			s.NotContains(ans.Profile, "extra_preferences")
		}
	}

	view, err := s.engine.Get(ctx, sid)
	s.Require().NoError(err)
	s.Equal(models.SessionStatusCompleted, view.Session.Status)
	s.Require().NotNil(view.Session.CompletedAt)
	s.Equal(5, view.Session.MessageCount)
	// Opening prompt + 5 exchanges of 2 messages each.
	s.Len(view.Messages, 11)

	rec, err := s.store.GetProfileRecord(ctx, sid)
	s.Require().NoError(err)
	s.Equal("u1", rec.UserID)
	s.Equal(view.Session.Profile, rec.Fields)
}

func (s *EngineSuite) TestMultiFieldAnswer() {
	ctx := context.Background()
	res, err := s.engine.Start(ctx, "u1")
	s.Require().NoError(err)

	s.caller.push(success("Got it! Where do you want to work?", map[string]string{
		"name":             "Ann",
		"role":             "Data Scientist",
		"experience_level": "Mid-level",
	}))
	ans, err := s.engine.SubmitAnswer(ctx, res.SessionID, "I'm Ann, a mid-level data scientist")
	s.Require().NoError(err)
	s.False(ans.IsComplete)

	view, err := s.engine.Get(ctx, res.SessionID)
	s.Require().NoError(err)
	s.Len(view.Session.Profile, 3)

	next, missing := schema.NextMissing(view.Session.Profile)
	s.Require().True(missing)
	s.Equal(schema.FieldLocation, next.Key)
}

func (s *EngineSuite) TestDegradedKeepsSessionOpen() {
	ctx := context.Background()
	res, err := s.engine.Start(ctx, "u1")
	s.Require().NoError(err)

	s.caller.push(degraded())
	ans, err := s.engine.SubmitAnswer(ctx, res.SessionID, "My name is Ann")
	s.Require().NoError(err)
	s.True(ans.Degraded)
	s.False(ans.IsComplete)
	s.Equal(schema.DegradedReply, ans.Reply)

	view, err := s.engine.Get(ctx, res.SessionID)
	s.Require().NoError(err)
	s.Equal(models.SessionStatusInProgress, view.Session.Status)
	s.Empty(view.Session.Profile, "degraded exchange must not touch the profile")
	s.Equal(1, view.Session.MessageCount)
	s.Len(view.Messages, 3)

	// The user can retry on the next turn.
	s.caller.push(success("Nice to meet you!", map[string]string{"name": "Ann"}))
	ans, err = s.engine.SubmitAnswer(ctx, res.SessionID, "Ann")
	s.Require().NoError(err)
	s.False(ans.Degraded)
}

func (s *EngineSuite) TestReAskKeepsFirstValue() {
	ctx := context.Background()
	res, err := s.engine.Start(ctx, "u1")
	s.Require().NoError(err)

	s.caller.push(success("ok", map[string]string{"name": "Ann"}))
	_, err = s.engine.SubmitAnswer(ctx, res.SessionID, "Ann")
	s.Require().NoError(err)

	s.caller.push(success("ok", map[string]string{"name": "Annabel", "role": "PM"}))
	_, err = s.engine.SubmitAnswer(ctx, res.SessionID, "Actually call me Annabel, I'm a PM")
	s.Require().NoError(err)

	view, err := s.engine.Get(ctx, res.SessionID)
	s.Require().NoError(err)
	s.Equal("Ann", view.Session.Profile["name"], "first answer wins")
	s.Equal("PM", view.Session.Profile["role"])
}

func (s *EngineSuite) TestKnownProfileReachesCaller() {
	ctx := context.Background()
	res, err := s.engine.Start(ctx, "u1")
	s.Require().NoError(err)

	s.caller.push(success("ok", map[string]string{"name": "Ann"}))
	_, err = s.engine.SubmitAnswer(ctx, res.SessionID, "Ann")
	s.Require().NoError(err)

	s.caller.push(success("ok", nil))
	_, err = s.engine.SubmitAnswer(ctx, res.SessionID, "hmm")
	s.Require().NoError(err)
	s.Equal("Ann", s.caller.lastReq.Known["name"])
	s.GreaterOrEqual(len(s.caller.lastReq.History), 4)
}

func (s *EngineSuite) TestSubmitAnswerNotFound() {
	_, err := s.engine.SubmitAnswer(context.Background(), "no-such-session", "hi")
	s.ErrorIs(err, ErrNotFound)
}

func (s *EngineSuite) TestGetNotFound() {
	_, err := s.engine.Get(context.Background(), "no-such-session")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *EngineSuite) TestSubmitAnswerOnTerminalSession() {
	ctx := context.Background()
	res, err := s.engine.Start(ctx, "u1")
	s.Require().NoError(err)

	s.Require().NoError(s.engine.Abandon(ctx, res.SessionID))

	before, err := s.engine.Get(ctx, res.SessionID)
	s.Require().NoError(err)

	_, err = s.engine.SubmitAnswer(ctx, res.SessionID, "hello?")
	s.ErrorIs(err, ErrInvalidState)

	after, err := s.engine.Get(ctx, res.SessionID)
	s.Require().NoError(err)
	s.Len(after.Messages, len(before.Messages), "rejected submit must not append messages")
	s.Equal(before.Session.Profile, after.Session.Profile)
	s.Zero(s.caller.calls, "no provider call for a terminal session")
}

func (s *EngineSuite) TestAbandonTerminalFails() {
	ctx := context.Background()
	res, err := s.engine.Start(ctx, "u1")
	s.Require().NoError(err)

	s.Require().NoError(s.engine.Abandon(ctx, res.SessionID))
	s.ErrorIs(s.engine.Abandon(ctx, res.SessionID), ErrInvalidState)
}

func (s *EngineSuite) TestEmptyReplyFallsBackToTemplate() {
	ctx := context.Background()
	res, err := s.engine.Start(ctx, "u1")
	s.Require().NoError(err)

	s.caller.push(success("", map[string]string{"name": "Ann"}))
	ans, err := s.engine.SubmitAnswer(ctx, res.SessionID, "Ann")
	s.Require().NoError(err)

	role, _ := schema.Lookup(schema.FieldRole)
	s.Equal(role.Prompt, ans.Reply)
}
