package journey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go-journey/internal/chat"
	"go-journey/internal/classifier"
	"go-journey/internal/member"
	"go-journey/internal/mission"
	"go-journey/internal/signal"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memberMap map[string]member.Member

func (m memberMap) Get(ctx context.Context, id string) (member.Member, error) {
	if mem, ok := m[id]; ok {
		return mem, nil
	}
	return member.Member{}, fmt.Errorf("%w: %s", member.ErrNotFound, id)
}

type fakeHistory struct {
	mu       sync.Mutex
	messages map[string][]chat.Message
	err      error
}

func (h *fakeHistory) FetchHistory(ctx context.Context, memberID string) ([]chat.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return nil, h.err
	}
	return append([]chat.Message(nil), h.messages[memberID]...), nil
}

type result struct {
	cls classifier.Classification
	err error
}

// scriptedClassifier returns the scripted results in call order, repeating the last one
type scriptedClassifier struct {
	mu     sync.Mutex
	script []result
	calls  int
	hook   func(ctx context.Context)
}

func (s *scriptedClassifier) Classify(ctx context.Context, in classifier.Input) (classifier.Classification, error) {
	s.mu.Lock()
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	r := s.script[i]
	s.calls++
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	return r.cls, r.err
}

func (s *scriptedClassifier) push(rs ...result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, rs...)
}

func proposal(missionID, stageID string, churn float64, tags ...signal.Tag) result {
	c := classifier.Classification{
		MissionID:        missionID,
		StageID:          stageID,
		ChurnProbability: churn,
		Recommendation:   "next action for " + stageID,
	}
	for _, t := range tags {
		c.Signals = append(c.Signals, classifier.SignalNote{Tag: t, Title: "classified " + string(t)})
	}
	return result{cls: c}
}

type fixture struct {
	facade     *Facade
	classifier *scriptedClassifier
	history    *fakeHistory
	signals    *signal.Log
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	members := memberMap{}
	for _, m := range member.Defaults() {
		members[m.ID] = m
	}
	members["M009"] = member.Member{ID: "M009", Name: "No Seed", Vertical: mission.VerticalBFSI}
	members["M010"] = member.Member{ID: "M010", Name: "Mid Journey", Vertical: mission.VerticalBFSI,
		SeedMissionID: "MSN001", SeedStageID: "consideration"}

	hist := &fakeHistory{messages: map[string][]chat.Message{}}
	for id := range members {
		hist.messages[id] = []chat.Message{{MemberID: id, Role: chat.RoleUser, Content: "hello"}}
	}
	cls := &scriptedClassifier{}
	log := signal.NewLog()
	f := New(Deps{
		Catalog:    mission.Default(),
		Profiles:   members,
		History:    hist,
		Classifier: cls,
		Signals:    log,
	}, opts)
	t.Cleanup(f.Close)
	return &fixture{facade: f, classifier: cls, history: hist, signals: log}
}

func (fx *fixture) refresh(t *testing.T, memberID string, r result) (State, error) {
	t.Helper()
	fx.classifier.push(r)
	return fx.facade.RefreshIntent(context.Background(), memberID)
}

func mustRefresh(t *testing.T, fx *fixture, memberID string, r result) State {
	t.Helper()
	st, err := fx.refresh(t, memberID, r)
	require.NoError(t, err)
	return st
}

func newSignals(fx *fixture, memberID string, before int) []signal.Signal {
	all := fx.signals.Recent(memberID, false)
	return all[before:]
}

func TestCurrentState_SeedsFromMember(t *testing.T) {
	fx := newFixture(t, Options{})
	st, err := fx.facade.CurrentState(context.Background(), "M001")
	require.NoError(t, err)

	assert.Equal(t, "MSN001", st.MissionID)
	assert.Equal(t, "loyal_member", st.StageID)
	assert.Equal(t, 1, st.Run)
	assert.False(t, st.Classified)
	require.Len(t, st.History, 1)
	assert.Equal(t, 0, st.History[0].Ordinal)
}

func TestCurrentState_DefaultsToVerticalMission(t *testing.T) {
	fx := newFixture(t, Options{})
	st, err := fx.facade.CurrentState(context.Background(), "M009")
	require.NoError(t, err)
	assert.Equal(t, "MSN001", st.MissionID)
	assert.Equal(t, "loyal_member", st.StageID)
}

func TestCurrentState_UnknownMember(t *testing.T) {
	fx := newFixture(t, Options{})
	_, err := fx.facade.CurrentState(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrMemberNotFound)
	assert.Equal(t, KindMemberNotFound, ErrorKind(err))

	_, err = fx.facade.RefreshIntent(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestCurrentState_ReadsAreIdempotent(t *testing.T) {
	fx := newFixture(t, Options{})
	mustRefresh(t, fx, "M001", proposal("MSN001", "opportunity_detected", 0.2))

	a, err := fx.facade.CurrentState(context.Background(), "M001")
	require.NoError(t, err)
	b, err := fx.facade.CurrentState(context.Background(), "M001")
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("consecutive reads differ (-first +second):\n%s", diff)
	}

	// returned values are copies
	a.History[0].StageID = "tampered"
	c, _ := fx.facade.CurrentState(context.Background(), "M001")
	assert.Equal(t, "loyal_member", c.History[0].StageID)
}

func TestRefreshIntent_AdvanceWithinMission(t *testing.T) {
	fx := newFixture(t, Options{})
	st := mustRefresh(t, fx, "M001", proposal("MSN001", "opportunity_detected", 0.15))

	assert.Equal(t, "MSN001", st.MissionID)
	assert.Equal(t, "opportunity_detected", st.StageID)
	assert.Equal(t, 1, st.Run, "no mission switch")
	assert.True(t, st.Classified)
	assert.InDelta(t, 0.15, st.ChurnProbability, 1e-9)
	assert.Equal(t, "next action for opportunity_detected", st.LastRecommendation)
	assert.Zero(t, signal.Count(fx.signals.Recent("M001", false), signal.TagNeutral))
}

func TestRefreshIntent_SwitchNeedsCorroboration(t *testing.T) {
	fx := newFixture(t, Options{})
	mustRefresh(t, fx, "M001", proposal("MSN001", "opportunity_detected", 0.15))

	retention := proposal("MSN002", "at_risk", 0.7, signal.TagNegative, signal.TagNegative)

	first := mustRefresh(t, fx, "M001", retention)
	assert.Equal(t, "MSN001", first.MissionID, "one uncorroborated proposal must not switch")
	assert.Equal(t, "opportunity_detected", first.StageID)

	second := mustRefresh(t, fx, "M001", proposal("MSN002", "at_risk", 0.85, signal.TagNegative, signal.TagNegative))
	assert.Equal(t, "MSN002", second.MissionID)
	assert.Equal(t, "at_risk", second.StageID)
	assert.Equal(t, 2, second.Run)
	assert.InDelta(t, 0.85, second.ChurnProbability, 1e-9)

	// run-tracking restarts: only the switching call's signals are since the switch
	since := fx.signals.Recent("M001", true)
	assert.Len(t, since, 2)
	assert.Equal(t, 2, signal.Count(since, signal.TagNegative))
	_, switched := fx.signals.LastSwitch("M001")
	assert.True(t, switched)
}

func TestRefreshIntent_SwitchUsesDesignatedEntryStage(t *testing.T) {
	fx := newFixture(t, Options{SwitchThreshold: 1})
	mustRefresh(t, fx, "M001", proposal("MSN001", "consideration", 0.1))
	_, err := fx.facade.RecordSignal(context.Background(), "M001", signal.TagWarning, "Fee complaint", "")
	require.NoError(t, err)

	// retained_member is not an entry stage of MSN002, so the run starts at active_member
	st := mustRefresh(t, fx, "M001", proposal("MSN002", "retained_member", 0.4))
	assert.Equal(t, "MSN002", st.MissionID)
	assert.Equal(t, "active_member", st.StageID)
	last := st.History[len(st.History)-1]
	assert.Equal(t, StageEntry{MissionID: "MSN002", StageID: "active_member", Ordinal: 0, Run: 2, EnteredAt: last.EnteredAt}, last)
}

func TestRefreshIntent_UnavailableLeavesStateUntouched(t *testing.T) {
	members := memberMap{}
	for _, m := range member.Defaults() {
		members[m.ID] = m
	}
	hist := &fakeHistory{messages: map[string][]chat.Message{
		"M001": {{MemberID: "M001", Role: chat.RoleUser, Content: "hello"}},
	}}
	var slow bool
	var mu sync.Mutex
	model := classifier.ModelFunc(func(ctx context.Context, prompt string) (string, error) {
		mu.Lock()
		s := slow
		mu.Unlock()
		if s {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return `{"mission_id":"MSN001","stage_id":"opportunity_detected","churn_probability":0.3,"signals":["positive"]}`, nil
	})
	catalog := mission.Default()
	f := New(Deps{
		Catalog:    catalog,
		Profiles:   members,
		History:    hist,
		Classifier: classifier.NewAdapter(model, catalog, nil, classifier.WithTimeout(20*time.Millisecond)),
	}, Options{})
	t.Cleanup(f.Close)
	ctx := context.Background()

	_, err := f.RefreshIntent(ctx, "M001")
	require.NoError(t, err)
	before, err := f.CurrentState(ctx, "M001")
	require.NoError(t, err)
	beforeJSON, _ := json.Marshal(before)
	signalsBefore, _ := f.Signals(ctx, "M001", false)

	mu.Lock()
	slow = true
	mu.Unlock()

	returned, err := f.RefreshIntent(ctx, "M001")
	require.Error(t, err)
	assert.ErrorIs(t, err, classifier.ErrClassificationUnavailable)
	assert.Equal(t, KindClassificationUnavailable, ErrorKind(err))
	assert.True(t, IsSoft(err))

	after, err := f.CurrentState(ctx, "M001")
	require.NoError(t, err)
	afterJSON, _ := json.Marshal(after)
	returnedJSON, _ := json.Marshal(returned)
	assert.Equal(t, string(beforeJSON), string(afterJSON))
	assert.Equal(t, string(beforeJSON), string(returnedJSON))

	signalsAfter, _ := f.Signals(ctx, "M001", false)
	assert.Equal(t, signalsBefore, signalsAfter)
}

func TestRefreshIntent_InvalidKeepsPriorState(t *testing.T) {
	fx := newFixture(t, Options{})
	prev := mustRefresh(t, fx, "M001", proposal("MSN001", "opportunity_detected", 0.2))

	st, err := fx.refresh(t, "M001", result{err: fmt.Errorf("%w: unknown mission", classifier.ErrClassificationInvalid)})
	assert.ErrorIs(t, err, classifier.ErrClassificationInvalid)
	assert.Equal(t, KindClassificationInvalid, ErrorKind(err))
	assert.Equal(t, prev, st)
}

func TestRefreshIntent_MissionFlipIsHeldAsAmbiguous(t *testing.T) {
	fx := newFixture(t, Options{})
	mustRefresh(t, fx, "M001", proposal("MSN001", "opportunity_detected", 0.2))
	mustRefresh(t, fx, "M001", proposal("MSN002", "at_risk", 0.7, signal.TagNegative, signal.TagNegative))
	mustRefresh(t, fx, "M001", proposal("MSN002", "at_risk", 0.8, signal.TagNegative))
	st := mustRefresh(t, fx, "M001", proposal("MSN002", "at_risk", 0.8))
	require.Equal(t, "MSN002", st.MissionID)

	before := fx.signals.Len("M001")
	st = mustRefresh(t, fx, "M001", proposal("MSN001", "consideration", 0.3))

	assert.Equal(t, "MSN002", st.MissionID, "flip back without growth signals is held")
	assert.Equal(t, "at_risk", st.StageID)
	added := newSignals(fx, "M001", before)
	require.Len(t, added, 1)
	assert.Equal(t, signal.TagNeutral, added[0].Tag)
	assert.Equal(t, signal.SourceResolver, added[0].Source)
}

func TestRefreshIntent_BackwardMoveRejected(t *testing.T) {
	fx := newFixture(t, Options{})
	st := mustRefresh(t, fx, "M001", proposal("MSN001", "consideration", 0.2))
	require.Equal(t, "consideration", st.StageID)

	before := fx.signals.Len("M001")
	st = mustRefresh(t, fx, "M001", proposal("MSN001", "loyal_member", 0.25))

	assert.Equal(t, "consideration", st.StageID)
	assert.InDelta(t, 0.25, st.ChurnProbability, 1e-9)
	added := newSignals(fx, "M001", before)
	require.Len(t, added, 1)
	assert.Equal(t, signal.TagNeutral, added[0].Tag)
	assert.Equal(t, signal.SourceTracker, added[0].Source)
}

func TestRefreshIntent_FirstProposalBehindSeedIsRejected(t *testing.T) {
	fx := newFixture(t, Options{})
	st := mustRefresh(t, fx, "M010", proposal("MSN001", "loyal_member", 0.2))

	assert.Equal(t, "MSN001", st.MissionID)
	assert.Equal(t, "consideration", st.StageID)
	assert.Equal(t, 1, st.Run)
	assert.True(t, st.Classified)
	all := fx.signals.Recent("M010", false)
	require.Len(t, all, 1)
	assert.Equal(t, signal.TagNeutral, all[0].Tag)
	assert.Equal(t, signal.SourceTracker, all[0].Source)
}

func TestRefreshIntent_NoConversation(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.history.messages["M002"] = nil

	st, err := fx.refresh(t, "M002", proposal("MSN003", "engagement", 0.1))
	assert.ErrorIs(t, err, ErrNoConversation)
	assert.True(t, IsSoft(err))
	assert.Equal(t, "stable_patient", st.StageID)
	assert.Equal(t, 0, fx.classifier.calls)
}

func TestRefreshIntent_HistoryFailureIsUnavailable(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.history.err = errors.New("db down")

	st, err := fx.refresh(t, "M001", proposal("MSN001", "consideration", 0.1))
	assert.ErrorIs(t, err, classifier.ErrClassificationUnavailable)
	assert.Equal(t, "loyal_member", st.StageID)
}

func TestRefreshIntent_CanceledBeforeCommit(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fx.classifier.push(proposal("MSN001", "consideration", 0.3, signal.TagGrowth))
	fx.classifier.hook = func(context.Context) { cancel() }

	_, err := fx.facade.RefreshIntent(ctx, "M001")
	assert.ErrorIs(t, err, context.Canceled)

	st, err := fx.facade.CurrentState(context.Background(), "M001")
	require.NoError(t, err)
	assert.Equal(t, "loyal_member", st.StageID)
	assert.False(t, st.Classified)
	assert.Zero(t, fx.signals.Len("M001"))
}

func TestRefreshIntent_WaitingCallerCanGiveUp(t *testing.T) {
	fx := newFixture(t, Options{})
	release, err := fx.facade.store.Lock(context.Background(), "M001")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = fx.facade.RefreshIntent(ctx, "M001")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefreshIntent_OtherMembersDoNotContend(t *testing.T) {
	fx := newFixture(t, Options{})
	release, err := fx.facade.store.Lock(context.Background(), "M001")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	fx.classifier.push(proposal("MSN004", "qualified_lead", 0.1))
	st, err := fx.facade.RefreshIntent(ctx, "M003")
	require.NoError(t, err)
	assert.Equal(t, "qualified_lead", st.StageID)
}

func TestConcurrentRefreshIsLinearizable(t *testing.T) {
	script := []result{
		proposal("MSN001", "opportunity_detected", 0.1, signal.TagPositive),
		proposal("MSN002", "at_risk", 0.6, signal.TagNegative, signal.TagWarning),
		proposal("MSN001", "loyal_member", 0.2),
		proposal("MSN002", "at_risk", 0.7, signal.TagNegative),
		proposal("MSN002", "re_engagement", 0.5, signal.TagPositive),
		proposal("MSN001", "consideration", 0.3, signal.TagGrowth),
		proposal("MSN002", "active_member", 0.4),
		proposal("MSN001", "multi_product_member", 0.1, signal.TagGrowth, signal.TagGrowth),
		proposal("MSN001", "consideration", 0.2, signal.TagGrowth),
		proposal("MSN002", "retained_member", 0.1, signal.TagPositive),
		proposal("MSN001", "multi_product_member", 0.05),
		proposal("MSN002", "re_engagement", 0.3),
	}

	concurrent := newFixture(t, Options{})
	concurrent.classifier.script = script

	var wg sync.WaitGroup
	for range script {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := concurrent.facade.RefreshIntent(context.Background(), "M001")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	serial := newFixture(t, Options{})
	serial.classifier.script = script
	for range script {
		_, err := serial.facade.RefreshIntent(context.Background(), "M001")
		require.NoError(t, err)
	}

	got, _ := concurrent.facade.CurrentState(context.Background(), "M001")
	want, _ := serial.facade.CurrentState(context.Background(), "M001")
	assert.Equal(t, uint64(len(script)), got.Version)

	ignoreTimes := cmp.Options{
		cmpopts.IgnoreFields(State{}, "UpdatedAt"),
		cmpopts.IgnoreFields(StageEntry{}, "EnteredAt"),
	}
	if diff := cmp.Diff(want, got, ignoreTimes); diff != "" {
		t.Errorf("concurrent result differs from serial replay (-serial +concurrent):\n%s", diff)
	}

	tags := func(ss []signal.Signal) []signal.Tag {
		out := make([]signal.Tag, len(ss))
		for i, s := range ss {
			out[i] = s.Tag
		}
		return out
	}
	assert.Equal(t, tags(serial.signals.Recent("M001", false)), tags(concurrent.signals.Recent("M001", false)))
}

func TestStateInvariantsHoldAcrossRefreshes(t *testing.T) {
	fx := newFixture(t, Options{})
	catalog := mission.Default()
	missions := catalog.ListMissions()
	tags := []signal.Tag{signal.TagNegative, signal.TagWarning, signal.TagGrowth, signal.TagPositive, signal.TagNeutral}

	var prev State
	for i := 0; i < 200; i++ {
		m := missions[(i*7)%2] // alternate within the BFSI missions
		stage := m.Stages[(i*5+i/3)%len(m.Stages)]
		r := proposal(m.ID, stage.ID, float64(i%10)/10, tags[i%len(tags)], tags[(i/2)%len(tags)])
		st := mustRefresh(t, fx, "M001", r)

		_, err := catalog.Stage(st.MissionID, st.StageID)
		require.NoError(t, err, "stage %s must belong to %s", st.StageID, st.MissionID)
		assert.GreaterOrEqual(t, st.ChurnProbability, 0.0)
		assert.LessOrEqual(t, st.ChurnProbability, 1.0)

		if i > 0 && st.Run == prev.Run {
			assert.Equal(t, prev.MissionID, st.MissionID)
			assert.GreaterOrEqual(t, st.currentOrdinal(), prev.currentOrdinal(), "ordinal regressed within a run")
		}
		if st.Run != prev.Run && i > 0 {
			mis, _ := catalog.GetMission(st.MissionID)
			assert.True(t, mis.IsEntryStage(st.StageID), "switch must land on an entry stage")
		}
		assert.GreaterOrEqual(t, len(st.History), len(prev.History), "history is append-only")
		prev = st
	}
}

func TestListenersReceiveEventsInOrder(t *testing.T) {
	fx := newFixture(t, Options{})
	var mu sync.Mutex
	var got []Move
	fx.facade.AddListener(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Move)
	})
	fx.facade.AddListener(func(e Event) { panic("listener failure must not stop delivery") })

	mustRefresh(t, fx, "M001", proposal("MSN001", "opportunity_detected", 0.1))
	mustRefresh(t, fx, "M001", proposal("MSN001", "consideration", 0.1))
	mustRefresh(t, fx, "M001", proposal("MSN001", "loyal_member", 0.1))
	fx.facade.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Move{MoveAdopt, MoveAdvance, MoveRegression}, got)
}

func TestSlowListenerDoesNotBlockRefresh(t *testing.T) {
	fx := newFixture(t, Options{EventBuffer: 1})
	block := make(chan struct{})
	var delivered atomic.Int32
	fx.facade.AddListener(func(e Event) {
		<-block
		delivered.Add(1)
	})

	stages := []string{"opportunity_detected", "consideration", "multi_product_member", "multi_product_member"}
	errs := make(chan error, len(stages))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range stages {
			fx.classifier.push(proposal("MSN001", id, 0.1))
			_, err := fx.facade.RefreshIntent(context.Background(), "M001")
			errs <- err
		}
	}()

	var finished bool
	select {
	case <-done:
		finished = true
	case <-time.After(2 * time.Second):
	}
	close(block)
	<-done
	fx.facade.Close()

	require.True(t, finished, "refreshes waited on a stalled listener")
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	st, err := fx.facade.CurrentState(context.Background(), "M001")
	require.NoError(t, err)
	assert.Equal(t, "multi_product_member", st.StageID)
	n := delivered.Load()
	assert.GreaterOrEqual(t, n, int32(1))
	assert.Less(t, n, int32(len(stages)), "events beyond the buffer are dropped")
}

func TestUnknownMembersLeaveNoEntries(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("ghost-%d", i)
		_, err := fx.facade.CurrentState(ctx, id)
		assert.ErrorIs(t, err, ErrMemberNotFound)
		_, err = fx.facade.RecordSignal(ctx, id, signal.TagNegative, "x", "")
		assert.ErrorIs(t, err, ErrMemberNotFound)
		_, err = fx.facade.RefreshIntent(ctx, id)
		assert.ErrorIs(t, err, ErrMemberNotFound)
	}
	require.NoError(t, fx.facade.Seed(ctx, map[string][]signal.Signal{"ghost-x": {{Tag: signal.TagPositive}}}))

	fx.facade.store.mu.RLock()
	defer fx.facade.store.mu.RUnlock()
	assert.Empty(t, fx.facade.store.entries)
}

func TestProgress(t *testing.T) {
	fx := newFixture(t, Options{})
	p, err := fx.facade.Progress(context.Background(), "M001")
	require.NoError(t, err)
	assert.Equal(t, "Investment Product Adoption", p.Mission.Title)
	assert.Equal(t, 1, p.StageNumber)
	assert.Equal(t, 4, p.StageCount)
	assert.Equal(t, "Opportunity Detected", p.NextStage)
	assert.False(t, p.Complete)

	mustRefresh(t, fx, "M001", proposal("MSN001", "multi_product_member", 0.05, signal.TagGrowth))
	p, err = fx.facade.Progress(context.Background(), "M001")
	require.NoError(t, err)
	assert.Equal(t, JourneyComplete, p.NextStage)
	assert.True(t, p.Complete)
	assert.Equal(t, 1, p.SignalCount)
	require.Len(t, p.RecentSignals, 1)
}

func TestSeedSignalsOnce(t *testing.T) {
	fx := newFixture(t, Options{})
	seeds := DefaultSeedSignals(time.Now())
	seeds["ghost"] = []signal.Signal{{Tag: signal.TagPositive, Title: "unknown member"}}

	require.NoError(t, fx.facade.Seed(context.Background(), seeds))
	require.NoError(t, fx.facade.Seed(context.Background(), seeds))

	got, err := fx.facade.Signals(context.Background(), "M001", false)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, signal.SourceSeed, got[0].Source)
}

func TestRecordSignalValidatesTag(t *testing.T) {
	fx := newFixture(t, Options{})
	_, err := fx.facade.RecordSignal(context.Background(), "M001", signal.Tag("furious"), "x", "")
	assert.Error(t, err)

	_, err = fx.facade.RecordSignal(context.Background(), "nobody", signal.TagNegative, "x", "")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestListings(t *testing.T) {
	fx := newFixture(t, Options{})
	missions := fx.facade.ListMissions()
	require.Len(t, missions, 4)
	assert.Equal(t, 4, missions[0].StageCount)

	bfsi := fx.facade.ListStagesForVertical(mission.VerticalBFSI)
	require.Len(t, bfsi, 2)
	assert.Equal(t, []string{"Active Member", "At Risk", "Re-engagement", "Retained Member"}, bfsi[1].Labels)
}

type memorySnapshots struct {
	mu     sync.Mutex
	states map[string]State
}

func (m *memorySnapshots) Load(ctx context.Context, id string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	return st, ok, nil
}

func (m *memorySnapshots) Save(ctx context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.MemberID] = st.Clone()
	return nil
}

func TestSnapshotsRestoreState(t *testing.T) {
	snaps := &memorySnapshots{states: map[string]State{}}
	members := memberMap{}
	for _, m := range member.Defaults() {
		members[m.ID] = m
	}
	hist := &fakeHistory{messages: map[string][]chat.Message{"M001": {{Content: "hi"}}}}
	cls := &scriptedClassifier{script: []result{proposal("MSN001", "consideration", 0.2)}}

	first := New(Deps{Catalog: mission.Default(), Profiles: members, History: hist, Classifier: cls, Snapshots: snaps}, Options{})
	saved, err := first.RefreshIntent(context.Background(), "M001")
	require.NoError(t, err)
	first.Close()

	second := New(Deps{Catalog: mission.Default(), Profiles: members, History: hist, Classifier: cls, Snapshots: snaps}, Options{})
	defer second.Close()
	restored, err := second.CurrentState(context.Background(), "M001")
	require.NoError(t, err)
	if diff := cmp.Diff(saved, restored); diff != "" {
		t.Errorf("restored state differs:\n%s", diff)
	}
}

// cancelOnSave cancels the refreshing caller as soon as the snapshot write starts
type cancelOnSave struct {
	memorySnapshots
	cancel  context.CancelFunc
	saveErr error
}

func (c *cancelOnSave) Save(ctx context.Context, st State) error {
	c.cancel()
	c.saveErr = ctx.Err()
	return c.memorySnapshots.Save(ctx, st)
}

func TestSnapshotSaveOutlivesCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snaps := &cancelOnSave{memorySnapshots: memorySnapshots{states: map[string]State{}}, cancel: cancel}
	members := memberMap{}
	for _, m := range member.Defaults() {
		members[m.ID] = m
	}
	hist := &fakeHistory{messages: map[string][]chat.Message{"M001": {{Content: "hi"}}}}
	cls := &scriptedClassifier{script: []result{proposal("MSN001", "consideration", 0.2)}}

	f := New(Deps{Catalog: mission.Default(), Profiles: members, History: hist, Classifier: cls, Snapshots: snaps}, Options{})
	defer f.Close()
	st, err := f.RefreshIntent(ctx, "M001")
	require.NoError(t, err)

	assert.NoError(t, snaps.saveErr)
	saved, ok, _ := snaps.Load(context.Background(), "M001")
	require.True(t, ok)
	assert.Equal(t, st.Version, saved.Version)
	assert.Equal(t, "consideration", saved.StageID)
}
