// Package stats derives the personal play statistics shown on the
// dashboard from raw play-log timestamps.
package stats

import (
	"math"
	"sort"
	"strconv"
	"time"
)

const dayLayout = "2006-01-02"

// Input is everything needed to build a report. Plays are bucketed in Loc.
type Input struct {
	Plays             []time.Time
	Loc               *time.Location
	Now               time.Time
	MinPlaysPerDay    int
	UniqueGamesPlayed int
	TotalGames        int
}

type Insights struct {
	TotalPlays        int    `json:"totalPlays"`
	BusiestDay        string `json:"busiestDay"`
	FavoriteTime      string `json:"favoriteTime"`
	CompletionRate    int    `json:"completionRate"`
	UniqueGamesPlayed int    `json:"uniqueGamesPlayed"`
	CurrentStreak     int    `json:"currentStreak"`
	LongestStreak     int    `json:"longestStreak"`
}

type Report struct {
	Heatmap  map[string]int `json:"heatmap"`
	Insights Insights       `json:"insights"`
}

func Build(in Input) Report {
	loc := in.Loc
	if loc == nil {
		loc = time.UTC
	}
	current, longest := Streaks(in.Plays, loc, in.Now, in.MinPlaysPerDay)
	return Report{
		Heatmap: Heatmap(in.Plays, loc),
		Insights: Insights{
			TotalPlays:        len(in.Plays),
			BusiestDay:        BusiestDay(in.Plays, loc),
			FavoriteTime:      itoaHour(FavoriteHour(in.Plays, loc)),
			CompletionRate:    CompletionRate(in.UniqueGamesPlayed, in.TotalGames),
			UniqueGamesPlayed: in.UniqueGamesPlayed,
			CurrentStreak:     current,
			LongestStreak:     longest,
		},
	}
}

// Heatmap counts plays per calendar day.
func Heatmap(plays []time.Time, loc *time.Location) map[string]int {
	out := make(map[string]int)
	for _, at := range plays {
		out[at.In(loc).Format(dayLayout)]++
	}
	return out
}

// BusiestDay is the weekday with the most plays. Ties go to the earlier
// day of the week, starting on Sunday.
func BusiestDay(plays []time.Time, loc *time.Location) string {
	var counts [7]int
	for _, at := range plays {
		counts[at.In(loc).Weekday()]++
	}
	best := 0
	for i, count := range counts {
		if count > counts[best] {
			best = i
		}
	}
	return time.Weekday(best).String()
}

// FavoriteHour is the hour of day with the most plays, earliest on ties.
func FavoriteHour(plays []time.Time, loc *time.Location) int {
	var counts [24]int
	for _, at := range plays {
		counts[at.In(loc).Hour()]++
	}
	best := 0
	for i, count := range counts {
		if count > counts[best] {
			best = i
		}
	}
	return best
}

func itoaHour(hour int) string {
	return strconv.Itoa(hour) + ":00"
}

// CompletionRate is the rounded percentage of games played at least once.
func CompletionRate(unique, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(unique) / float64(total) * 100))
}

// Streaks returns the current and longest runs of consecutive qualifying
// days. A day qualifies with at least minPerDay plays. The current streak
// counts back from today, or from yesterday when today has not qualified
// yet.
func Streaks(plays []time.Time, loc *time.Location, now time.Time, minPerDay int) (int, int) {
	if minPerDay < 1 {
		minPerDay = 1
	}
	perDay := make(map[time.Time]int)
	for _, at := range plays {
		perDay[dayStart(at, loc)]++
	}
	var days []time.Time
	for day, count := range perDay {
		if count >= minPerDay {
			days = append(days, day)
		}
	}
	if len(days) == 0 {
		return 0, 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	qualifies := make(map[time.Time]bool, len(days))
	longest, run := 0, 0
	var prev time.Time
	for i, day := range days {
		qualifies[day] = true
		if i > 0 && day.Equal(prev.AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = day
	}

	cursor := dayStart(now, loc)
	if !qualifies[cursor] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	current := 0
	for qualifies[cursor] {
		current++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return current, longest
}

func dayStart(at time.Time, loc *time.Location) time.Time {
	local := at.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// StartOfDay is midnight of at's day in loc.
func StartOfDay(at time.Time, loc *time.Location) time.Time {
	return dayStart(at, loc)
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Categories counts topics, most played first and then by name.
func Categories(topics []string) []CategoryCount {
	counts := make(map[string]int)
	for _, topic := range topics {
		counts[topic]++
	}
	out := make([]CategoryCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, CategoryCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
