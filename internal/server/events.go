package server

import (
	"context"
	"encoding/json"
	"fmt"

	"dles/internal/db"
	"dles/internal/raceevents"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RaceEventPayload struct {
	ParticipantID  string `json:"participantId,omitempty"`
	Name           string `json:"name,omitempty"`
	RaceGameID     string `json:"raceGameId,omitempty"`
	Index          *int   `json:"index,omitempty"`
	Skipped        bool   `json:"skipped,omitempty"`
	TimeToComplete *int   `json:"timeToComplete,omitempty"`
	Status         string `json:"status,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// appendRaceEvent writes an event row inside tx. The returned event is
// published with publishRaceEvents once tx has committed.
func (s *Server) appendRaceEvent(tx *gorm.DB, raceID, eventType string, payload RaceEventPayload) (raceevents.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return raceevents.Event{}, fmt.Errorf("marshal race event: %w", err)
	}
	record := db.RaceEvent{
		RaceID:    raceID,
		Type:      eventType,
		Payload:   datatypes.JSON(data),
		CreatedAt: s.now().UTC(),
	}
	if err := tx.Create(&record).Error; err != nil {
		return raceevents.Event{}, fmt.Errorf("append race event: %w", err)
	}
	return newRaceEvent(record), nil
}

func newRaceEvent(record db.RaceEvent) raceevents.Event {
	return raceevents.Event{
		Seq:     record.ID,
		RaceID:  record.RaceID,
		Type:    record.Type,
		Payload: json.RawMessage(record.Payload),
		At:      record.CreatedAt,
	}
}

// publishRaceEvents fans events out to subscribers. Delivery failures are
// logged only; the event log and the race snapshot stay authoritative.
func (s *Server) publishRaceEvents(ctx context.Context, events ...raceevents.Event) {
	for _, event := range events {
		if err := s.broker.Publish(ctx, event); err != nil {
			s.logger.Warn("race event publish failed",
				zap.String("race_id", event.RaceID),
				zap.String("type", event.Type),
				zap.Error(err),
			)
		}
	}
}

// PublishCleanup records and publishes events for races removed or closed
// by the cleanup job.
func (s *Server) PublishCleanup(ctx context.Context, deleted, completed []string) {
	for _, id := range deleted {
		// The event rows went with the race, so deletions are published
		// without a persisted sequence number.
		s.publishRaceEvents(ctx, raceevents.Event{
			RaceID:  id,
			Type:    raceevents.TypeDeleted,
			Payload: json.RawMessage(`{"reason":"expired"}`),
			At:      s.now().UTC(),
		})
	}
	for _, id := range completed {
		event, err := s.appendRaceEvent(s.db.WithContext(ctx), id, raceevents.TypeRaceDone, RaceEventPayload{
			Status: db.RaceCompleted,
			Reason: "expired",
		})
		if err != nil {
			s.logger.Warn("race event append failed", zap.String("race_id", id), zap.Error(err))
			continue
		}
		s.publishRaceEvents(ctx, event)
	}
}
