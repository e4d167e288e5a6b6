package web

import "dles/internal/roles"

// Viewer is who a page renders for. Role is the stored role; EffectiveRole
// is what the page shows, which differs only while an owner uses view-as.
type Viewer struct {
	SignedIn      bool
	ID            string
	Name          string
	Role          roles.Role
	EffectiveRole roles.Role
}

func (v Viewer) Previewing() bool {
	return v.SignedIn && v.Role != v.EffectiveRole
}

type GameCard struct {
	ID             string
	Title          string
	Link           string
	Topic          string
	IsNew          bool
	Played         bool
	EmbedSupported *bool
	PlayCount      int
}

type HomeData struct {
	Viewer       Viewer
	Welcome      string
	Query        string
	Topics       []string
	ActiveTopics []string
	Games        []GameCard
	Lists        []ListCard
	Pagination   PaginationData
}

type ListCard struct {
	ID        string
	Name      string
	Color     string
	Icon      string
	GameCount int
	Games     []GameCard
}

type ListsData struct {
	Viewer  Viewer
	Lists   []ListCard
	Presets []ListCard
	Limit   int
}

type SubmitData struct {
	Viewer  Viewer
	Enabled bool
	Topics  []string
}

type RaceNewData struct {
	Viewer Viewer
	Games  []GameCard
}

type RaceViewData struct {
	Viewer Viewer
	RaceID string
	Name   string
	Status string
}

type DashboardData struct {
	Viewer            Viewer
	Heatmap           map[string]int
	Days              []string
	TotalPlays        int
	BusiestDay        string
	FavoriteTime      string
	CompletionRate    int
	UniqueGamesPlayed int
	CurrentStreak     int
	LongestStreak     int
}

type AdminTab struct {
	Key   string
	Label string
}

type AdminData struct {
	Viewer             Viewer
	Tabs               []AdminTab
	Games              []GameCard
	Pagination         PaginationData
	PendingSubmissions int
	Users              int
	PresetLists        int
	Topics             []string
}
