package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"go-journey/internal/journey"
	"go-journey/internal/signal"
)

const writeTimeout = 5 * time.Second

// JourneyEvent is the wire shape of a committed refresh
type JourneyEvent struct {
	Type             string          `json:"type"`
	MemberID         string          `json:"member_id"`
	Decision         string          `json:"decision"`
	Move             string          `json:"move"`
	FromMissionID    string          `json:"from_mission_id"`
	FromStageID      string          `json:"from_stage_id"`
	MissionID        string          `json:"mission_id"`
	StageID          string          `json:"stage_id"`
	Run              int             `json:"run"`
	MissionSwitched  bool            `json:"mission_switched"`
	ChurnProbability float64         `json:"churn_probability"`
	Recommendation   string          `json:"recommendation"`
	Signals          []signal.Signal `json:"signals,omitempty"`
	Version          uint64          `json:"version"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Event types
const (
	TypeRefreshed       = "journey.refreshed"
	TypeStageChanged    = "journey.stage_changed"
	TypeMissionSwitched = "journey.mission_switched"
)

// FromEvent flattens a journey event for publishing
func FromEvent(e journey.Event) JourneyEvent {
	typ := TypeRefreshed
	switch {
	case e.MissionSwitched():
		typ = TypeMissionSwitched
	case e.StageChanged():
		typ = TypeStageChanged
	}
	return JourneyEvent{
		Type:             typ,
		MemberID:         e.MemberID,
		Decision:         string(e.Decision),
		Move:             string(e.Move),
		FromMissionID:    e.Previous.MissionID,
		FromStageID:      e.Previous.StageID,
		MissionID:        e.Current.MissionID,
		StageID:          e.Current.StageID,
		Run:              e.Current.Run,
		MissionSwitched:  e.MissionSwitched(),
		ChurnProbability: e.Current.ChurnProbability,
		Recommendation:   e.Current.LastRecommendation,
		Signals:          e.Signals,
		Version:          e.Current.Version,
		Timestamp:        e.Timestamp,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends journey events to a Kafka topic keyed by member id
type Publisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewPublisher creates a Kafka-backed publisher
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}, logger)
}

func newPublisher(w messageWriter, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: w, logger: logger.Named("events")}
}

// Publish writes one event
func (p *Publisher) Publish(ctx context.Context, e journey.Event) error {
	data, err := json.Marshal(FromEvent(e))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.MemberID),
		Value: data,
		Time:  e.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	p.logger.Debug("Sent event", zap.String("member_id", e.MemberID), zap.String("decision", string(e.Decision)))
	return nil
}

// Listener adapts the publisher to the journey notifier; failures are logged
func (p *Publisher) Listener() journey.Listener {
	return func(e journey.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := p.Publish(ctx, e); err != nil {
			p.logger.Warn("Publish failed", zap.String("member_id", e.MemberID), zap.Error(err))
		}
	}
}

// Close flushes and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}
