// Package race holds the rules of the race state machine:
// waiting -> active -> completed, with each participant working through the
// race games strictly in order.
package race

import (
	"errors"
	"sort"
	"time"

	"dles/internal/db"
)

var (
	ErrNotWaiting       = errors.New("Race has already started")
	ErrNotActive        = errors.New("Race is not active")
	ErrNotEnoughPlayers = errors.New("At least two participants are required")
	ErrRaceFull         = errors.New("Race is full")
	ErrNotParticipant   = errors.New("You are not part of this race")
	ErrUnknownGame      = errors.New("Game is not part of this race")
	ErrAlreadyCompleted = errors.New("Game already completed")
	ErrOutOfOrder       = errors.New("Complete the previous game first")
)

// SortGames orders race games by their position in the sequence.
func SortGames(r *db.Race) {
	sort.SliceStable(r.RaceGames, func(i, j int) bool {
		return r.RaceGames[i].Order < r.RaceGames[j].Order
	})
}

// Participant returns the participant with id.
func Participant(r db.Race, id string) (*db.RaceParticipant, bool) {
	for i := range r.Participants {
		if r.Participants[i].ID == id {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

// Finished reports whether p has a completion for every race game.
func Finished(r db.Race, p db.RaceParticipant) bool {
	return len(r.RaceGames) > 0 && len(p.Completions) >= len(r.RaceGames)
}

// AllFinished reports whether every participant has finished.
func AllFinished(r db.Race) bool {
	if len(r.Participants) == 0 {
		return false
	}
	for _, p := range r.Participants {
		if !Finished(r, p) {
			return false
		}
	}
	return true
}

func ValidateJoin(r db.Race, maxParticipants int) error {
	if r.Status != db.RaceWaiting {
		return ErrNotWaiting
	}
	if maxParticipants > 0 && len(r.Participants) >= maxParticipants {
		return ErrRaceFull
	}
	return nil
}

func ValidateStart(r db.Race) error {
	if r.Status != db.RaceWaiting {
		return ErrNotWaiting
	}
	if len(r.Participants) < 2 {
		return ErrNotEnoughPlayers
	}
	return nil
}

// Step is the effect of recording one completion.
type Step struct {
	Index          int
	TimeToComplete int
	// Finishes is true when this completion is the participant's last.
	Finishes bool
	// CompletesRace is true when every other participant already finished.
	CompletesRace bool
}

// PlanCompletion validates that participantID may complete raceGameID at
// now and computes the resulting step. The race games must be sorted.
func PlanCompletion(r db.Race, participantID, raceGameID string, now time.Time) (Step, error) {
	if r.Status != db.RaceActive {
		return Step{}, ErrNotActive
	}
	p, ok := Participant(r, participantID)
	if !ok {
		return Step{}, ErrNotParticipant
	}
	index := -1
	for i, rg := range r.RaceGames {
		if rg.ID == raceGameID {
			index = i
			break
		}
	}
	if index < 0 {
		return Step{}, ErrUnknownGame
	}
	done := make(map[string]db.RaceGameCompletion, len(p.Completions))
	for _, c := range p.Completions {
		done[c.RaceGameID] = c
	}
	if _, exists := done[raceGameID]; exists {
		return Step{}, ErrAlreadyCompleted
	}

	since := now
	if r.StartedAt != nil {
		since = *r.StartedAt
	}
	if index > 0 {
		prev, ok := done[r.RaceGames[index-1].ID]
		if !ok {
			return Step{}, ErrOutOfOrder
		}
		since = prev.CompletedAt
	}

	step := Step{Index: index, TimeToComplete: elapsedSeconds(since, now)}
	step.Finishes = len(p.Completions)+1 >= len(r.RaceGames)
	if step.Finishes {
		step.CompletesRace = true
		for _, other := range r.Participants {
			if other.ID != participantID && !Finished(r, other) {
				step.CompletesRace = false
				break
			}
		}
	}
	return step, nil
}

func elapsedSeconds(since, now time.Time) int {
	if now.Before(since) {
		return 0
	}
	return int(now.Sub(since) / time.Second)
}

// NextIndex returns the index of the first race game participantID may act
// on, or -1 when they have finished or are not in the race. The race games
// must be sorted.
func NextIndex(r db.Race, participantID string) int {
	p, ok := Participant(r, participantID)
	if !ok {
		return -1
	}
	done := make(map[string]bool, len(p.Completions))
	for _, c := range p.Completions {
		done[c.RaceGameID] = true
	}
	for i, rg := range r.RaceGames {
		if !done[rg.ID] {
			return i
		}
	}
	return -1
}

// Winner is the participant with the earliest finish time.
func Winner(r db.Race) (*db.RaceParticipant, bool) {
	var winner *db.RaceParticipant
	for i := range r.Participants {
		p := &r.Participants[i]
		if p.FinishedAt == nil {
			continue
		}
		if winner == nil || p.FinishedAt.Before(*winner.FinishedAt) {
			winner = p
		}
	}
	return winner, winner != nil
}

// FinishSeconds is how long p took from the race start to their finish.
func FinishSeconds(r db.Race, p db.RaceParticipant) (int, bool) {
	if r.StartedAt == nil || p.FinishedAt == nil {
		return 0, false
	}
	return elapsedSeconds(*r.StartedAt, *p.FinishedAt), true
}
