package journey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-journey/internal/chat"
	"go-journey/internal/classifier"
	"go-journey/internal/member"
	"go-journey/internal/mission"
	"go-journey/internal/signal"

	"go.uber.org/zap"
)

var (
	// ErrMemberNotFound is returned for an unknown member id
	ErrMemberNotFound = errors.New("member not found")
	// ErrNoConversation is a soft refresh failure: there is nothing to classify yet
	ErrNoConversation = errors.New("no conversation history")
)

// Error kinds reported to callers alongside the unchanged state
const (
	KindClassificationUnavailable = "classification_unavailable"
	KindClassificationInvalid     = "classification_invalid"
	KindNoConversation            = "no_conversation"
	KindMemberNotFound            = "member_not_found"
	KindCanceled                  = "canceled"
	KindInternal                  = "internal"
)

// ErrorKind maps a facade error to a stable kind string; "" for nil
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, classifier.ErrClassificationUnavailable):
		return KindClassificationUnavailable
	case errors.Is(err, classifier.ErrClassificationInvalid):
		return KindClassificationInvalid
	case errors.Is(err, ErrNoConversation):
		return KindNoConversation
	case errors.Is(err, ErrMemberNotFound):
		return KindMemberNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// IsSoft reports whether err leaves a usable (unchanged) state for the caller
func IsSoft(err error) bool {
	switch ErrorKind(err) {
	case KindClassificationUnavailable, KindClassificationInvalid, KindNoConversation:
		return true
	}
	return false
}

// ProfileSource looks up members
type ProfileSource interface {
	Get(ctx context.Context, id string) (member.Member, error)
}

// HistorySource provides a member's conversation transcript, oldest first
type HistorySource interface {
	FetchHistory(ctx context.Context, memberID string) ([]chat.Message, error)
}

// Classifier is the intent classification step
type Classifier interface {
	Classify(ctx context.Context, in classifier.Input) (classifier.Classification, error)
}

// Deps are the collaborators of a Facade
type Deps struct {
	Catalog    *mission.Catalog
	Profiles   ProfileSource
	History    HistorySource
	Classifier Classifier
	Signals    *signal.Log
	Snapshots  Snapshotter
	Logger     *zap.Logger
}

// Options tune a Facade
type Options struct {
	SwitchThreshold int
	RefreshTimeout  time.Duration
	EventBuffer     int
}

// Progress summarises where a member stands in the active mission
type Progress struct {
	MemberID      string          `json:"member_id"`
	Mission       mission.Summary `json:"mission"`
	Stage         mission.Stage   `json:"stage"`
	StageNumber   int             `json:"stage_number"`
	StageCount    int             `json:"stage_count"`
	NextStage     string          `json:"next_stage"`
	Complete      bool            `json:"complete"`
	SignalCount   int             `json:"signal_count"`
	RecentSignals []signal.Signal `json:"recent_signals"`
}

const snapshotTimeout = 5 * time.Second

// JourneyComplete is the NextStage label at a mission's terminal stage
const JourneyComplete = "Journey Complete"

// Facade orchestrates classification, mission resolution and stage tracking
// for each refresh, and serves reads of the resulting journey state.
type Facade struct {
	catalog    *mission.Catalog
	profiles   ProfileSource
	history    HistorySource
	classifier Classifier
	signals    *signal.Log
	snapshots  Snapshotter
	store      *Store
	resolver   *Resolver
	tracker    *Tracker
	notifier   *notifier
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a journey facade
func New(d Deps, opts Options) *Facade {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("journey")
	signals := d.Signals
	if signals == nil {
		signals = signal.NewLog()
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Facade{
		catalog:    d.Catalog,
		profiles:   d.Profiles,
		history:    d.History,
		classifier: d.Classifier,
		signals:    signals,
		snapshots:  d.Snapshots,
		store:      NewStore(),
		resolver:   NewResolver(d.Catalog, opts.SwitchThreshold),
		tracker:    NewTracker(d.Catalog),
		notifier:   newNotifier(buffer, logger),
		timeout:    opts.RefreshTimeout,
		logger:     logger,
		now:        time.Now,
	}
}

// AddListener registers a callback for committed refreshes
func (f *Facade) AddListener(l Listener) {
	f.notifier.add(l)
}

// Close flushes pending events to listeners and stops delivery
func (f *Facade) Close() {
	f.notifier.close()
}

// ListMissions returns the catalog's mission summaries
func (f *Facade) ListMissions() []mission.Summary {
	missions := f.catalog.ListMissions()
	out := make([]mission.Summary, len(missions))
	for i, m := range missions {
		out[i] = m.Summarize()
	}
	return out
}

// ListStagesForVertical returns ordered stage labels for each mission of the vertical
func (f *Facade) ListStagesForVertical(v mission.Vertical) []mission.StageLabels {
	return f.catalog.StagesForVertical(v)
}

// CurrentState returns the member's journey state without calling out to the classifier.
// The state is seeded from the member's profile the first time it is asked for.
func (f *Facade) CurrentState(ctx context.Context, memberID string) (State, error) {
	if st, ok := f.store.Get(memberID); ok {
		return st, nil
	}
	release, err := f.lock(ctx, memberID)
	if err != nil {
		return State{}, err
	}
	defer release()
	return f.ensureState(ctx, memberID)
}

// lock takes the member's writer lock. A member without a stored state is
// looked up first, so unknown ids never get a store entry.
func (f *Facade) lock(ctx context.Context, memberID string) (func(), error) {
	if _, ok := f.store.Get(memberID); !ok {
		if _, err := f.lookup(ctx, memberID); err != nil {
			return nil, err
		}
	}
	return f.store.Lock(ctx, memberID)
}

func (f *Facade) lookup(ctx context.Context, memberID string) (member.Member, error) {
	m, err := f.profiles.Get(ctx, memberID)
	if err != nil {
		if errors.Is(err, member.ErrNotFound) {
			return member.Member{}, fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
		}
		return member.Member{}, fmt.Errorf("failed to load member %s: %w", memberID, err)
	}
	return m, nil
}

// ensureState returns the stored state, seeding it if needed. Caller holds the member lock.
func (f *Facade) ensureState(ctx context.Context, memberID string) (State, error) {
	if st, ok := f.store.Get(memberID); ok {
		return st, nil
	}
	m, err := f.lookup(ctx, memberID)
	if err != nil {
		return State{}, err
	}

	if f.snapshots != nil {
		st, ok, err := f.snapshots.Load(ctx, memberID)
		if err != nil {
			f.logger.Warn("Failed to load journey snapshot", zap.String("member_id", memberID), zap.Error(err))
		} else if ok && f.validState(st) {
			f.store.Put(st)
			f.logger.Info("Restored journey state", zap.String("member_id", memberID), zap.String("mission_id", st.MissionID))
			return st.Clone(), nil
		}
	}

	st := f.tracker.Seed(m.ID, m.SeedMissionID, m.SeedStageID)
	if m.SeedMissionID == "" {
		// no explicit seed: first mission of the member's vertical, if any
		if ms := f.catalog.ForVertical(m.Vertical); len(ms) > 0 {
			st = f.tracker.Seed(m.ID, ms[0].ID, "")
		}
	}
	f.store.Put(st)
	f.logger.Info("Seeded journey state",
		zap.String("member_id", memberID),
		zap.String("mission_id", st.MissionID),
		zap.String("stage_id", st.StageID))
	return st.Clone(), nil
}

func (f *Facade) validState(st State) bool {
	_, err := f.catalog.Stage(st.MissionID, st.StageID)
	return err == nil
}

// RefreshIntent classifies the member's conversation and commits the resulting
// mission and stage. On a soft failure it returns the unchanged prior state
// together with the error; nothing is committed unless the whole refresh succeeds.
func (f *Facade) RefreshIntent(ctx context.Context, memberID string) (State, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	release, err := f.lock(ctx, memberID)
	if err != nil {
		return State{}, err
	}
	defer release()

	prev, err := f.ensureState(ctx, memberID)
	if err != nil {
		return State{}, err
	}
	m, err := f.profiles.Get(ctx, memberID)
	if err != nil {
		return prev, fmt.Errorf("failed to load member %s: %w", memberID, err)
	}

	history, err := f.history.FetchHistory(ctx, memberID)
	if err != nil {
		f.logger.Warn("History fetch failed", zap.String("member_id", memberID), zap.Error(err))
		return prev, fmt.Errorf("%w: history: %w", classifier.ErrClassificationUnavailable, err)
	}
	if len(history) == 0 {
		return prev, ErrNoConversation
	}

	sinceSwitch := f.signals.Recent(memberID, true)
	cls, err := f.classifier.Classify(ctx, classifier.Input{
		Member:        m,
		History:       history,
		RecentSignals: f.signals.Recent(memberID, false),
		Candidates:    f.catalog.ListMissions(),
	})
	if err != nil {
		if errors.Is(err, classifier.ErrEmptyHistory) {
			return prev, ErrNoConversation
		}
		f.logger.Warn("Refresh kept prior state",
			zap.String("member_id", memberID),
			zap.String("kind", ErrorKind(err)),
			zap.Error(err))
		return prev, err
	}

	res := f.resolver.Resolve(prev, cls, sinceSwitch)
	out, err := f.tracker.Apply(prev, res, cls)
	if err != nil {
		f.logger.Error("Stage transition failed", zap.String("member_id", memberID), zap.Error(err))
		return prev, fmt.Errorf("%w: %w", classifier.ErrClassificationInvalid, err)
	}

	pending := make([]signal.Signal, 0, len(cls.Signals)+2)
	if res.Note != nil {
		pending = append(pending, *res.Note)
	}
	if out.Note != nil {
		pending = append(pending, *out.Note)
	}
	for _, n := range cls.Signals {
		pending = append(pending, signal.Signal{Tag: n.Tag, Title: n.Title, Description: n.Description, Source: signal.SourceClassifier})
	}

	// last point of no return: a canceled caller sees nothing committed
	if err := ctx.Err(); err != nil {
		return prev, err
	}

	committed := f.commit(memberID, out, pending)
	next := out.State

	if f.snapshots != nil {
		// detached from the caller: the in-memory commit already happened
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
		if err := f.snapshots.Save(saveCtx, next); err != nil {
			f.logger.Warn("Failed to save journey snapshot", zap.String("member_id", memberID), zap.Error(err))
		}
		cancel()
	}

	f.logger.Info("Refreshed journey",
		zap.String("member_id", memberID),
		zap.String("decision", string(res.Decision)),
		zap.String("move", string(out.Move)),
		zap.String("mission_id", next.MissionID),
		zap.String("stage_id", next.StageID),
		zap.Float64("churn_probability", next.ChurnProbability))

	f.notifier.publish(Event{
		MemberID:       memberID,
		Decision:       res.Decision,
		Move:           out.Move,
		Previous:       prev,
		Current:        next.Clone(),
		Classification: cls,
		Signals:        committed,
		Timestamp:      next.UpdatedAt,
	})
	return next.Clone(), nil
}

func (f *Facade) commit(memberID string, out Outcome, pending []signal.Signal) []signal.Signal {
	if out.NewRun {
		f.signals.MarkSwitch(memberID, f.now())
	}
	committed := make([]signal.Signal, 0, len(pending))
	for _, s := range pending {
		committed = append(committed, f.signals.Append(memberID, s))
	}
	f.store.Put(out.State)
	return committed
}

// RecordSignal appends an explicit trigger signal for the member
func (f *Facade) RecordSignal(ctx context.Context, memberID string, tag signal.Tag, title, description string) (signal.Signal, error) {
	if _, err := signal.ParseTag(string(tag)); err != nil {
		return signal.Signal{}, err
	}
	release, err := f.lock(ctx, memberID)
	if err != nil {
		return signal.Signal{}, err
	}
	defer release()
	if _, err := f.ensureState(ctx, memberID); err != nil {
		return signal.Signal{}, err
	}
	s := f.signals.Append(memberID, signal.Signal{Tag: tag, Title: title, Description: description, Source: signal.SourceTrigger})
	f.logger.Debug("Recorded signal", zap.String("member_id", memberID), zap.String("tag", string(tag)))
	return s, nil
}

// Seed appends seed signals for members, oldest first
func (f *Facade) Seed(ctx context.Context, seeds map[string][]signal.Signal) error {
	for memberID, list := range seeds {
		release, err := f.lock(ctx, memberID)
		if errors.Is(err, ErrMemberNotFound) {
			f.logger.Warn("Skipping seed signals for unknown member", zap.String("member_id", memberID))
			continue
		}
		if err != nil {
			return err
		}
		if _, err := f.ensureState(ctx, memberID); err != nil {
			release()
			return err
		}
		if f.signals.Len(memberID) == 0 {
			for _, s := range list {
				s.Source = signal.SourceSeed
				f.signals.Append(memberID, s)
			}
		}
		release()
	}
	return nil
}

// Signals returns the member's signal log
func (f *Facade) Signals(ctx context.Context, memberID string, sinceMissionSwitch bool) ([]signal.Signal, error) {
	if _, err := f.CurrentState(ctx, memberID); err != nil {
		return nil, err
	}
	return f.signals.Recent(memberID, sinceMissionSwitch), nil
}

// Progress reports the member's position in the active mission
func (f *Facade) Progress(ctx context.Context, memberID string) (Progress, error) {
	st, err := f.CurrentState(ctx, memberID)
	if err != nil {
		return Progress{}, err
	}
	m, err := f.catalog.GetMission(st.MissionID)
	if err != nil {
		return Progress{}, err
	}
	stage, err := f.catalog.Stage(st.MissionID, st.StageID)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{
		MemberID:   memberID,
		Mission:    m.Summarize(),
		Stage:      stage,
		StageCount: len(m.Stages),
		NextStage:  JourneyComplete,
		Complete:   m.Terminal(stage.ID),
	}
	for i, s := range m.Stages {
		if s.ID == stage.ID {
			p.StageNumber = i + 1
		}
	}
	if next, ok := m.Next(stage.ID); ok {
		p.NextStage = next.Label
	}

	all := f.signals.Recent(memberID, false)
	p.SignalCount = len(all)
	recent := make([]signal.Signal, 0, 3)
	for i := len(all) - 1; i >= 0 && len(recent) < 3; i-- {
		recent = append(recent, all[i])
	}
	p.RecentSignals = recent
	return p, nil
}

// Members returns the ids of members with a journey state in memory
func (f *Facade) Members() []string {
	return f.store.Members()
}
