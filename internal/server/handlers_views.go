package server

import (
	"net/http"
	"sort"
	"strings"

	"dles/internal/db"
	"dles/internal/roles"
	"dles/internal/stats"
	"dles/internal/web"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	homePageLimit  = 60
	adminPageLimit = 50
)

func render(c *gin.Context, component templ.Component) {
	templ.Handler(component).ServeHTTP(c.Writer, c.Request)
}

func viewerFor(c *gin.Context) web.Viewer {
	user, ok := currentUser(c)
	if !ok {
		return web.Viewer{}
	}
	return web.Viewer{
		SignedIn:      true,
		ID:            user.ID,
		Name:          user.Name,
		Role:          user.Role,
		EffectiveRole: effectiveRole(c, user),
	}
}

// signedInPage redirects signed-out visitors to the home page.
func signedInPage(c *gin.Context) (web.Viewer, bool) {
	viewer := viewerFor(c)
	if !viewer.SignedIn {
		c.Redirect(http.StatusFound, "/")
		return viewer, false
	}
	return viewer, true
}

func (s *Server) pageError(c *gin.Context, err error) {
	s.logger.Error("page render failed",
		zap.String("route", c.FullPath()),
		zap.String("request_id", requestIDFrom(c)),
		zap.Error(err),
	)
	c.String(http.StatusInternalServerError, "Something went wrong")
}

func gameCards(views []gameView, played map[string]bool) []web.GameCard {
	return lo.Map(views, func(g gameView, _ int) web.GameCard {
		return web.GameCard{
			ID:             g.ID,
			Title:          g.Title,
			Link:           g.Link,
			Topic:          g.Topic,
			IsNew:          g.IsNew,
			Played:         played[g.ID],
			EmbedSupported: g.EmbedSupported,
			PlayCount:      g.PlayCount,
		}
	})
}

// playedToday returns the ids of games the user played since local midnight.
func (s *Server) playedToday(c *gin.Context, userID string) map[string]bool {
	var ids []string
	today := stats.StartOfDay(s.now(), s.statsLoc)
	if err := s.db.WithContext(c.Request.Context()).Model(&db.GamePlayLog{}).
		Where("user_id = ? AND played_at >= ?", userID, today).
		Distinct("game_id").
		Pluck("game_id", &ids).Error; err != nil {
		s.logger.Warn("played today lookup failed", zap.String("user_id", userID), zap.Error(err))
	}
	return lo.SliceToMap(ids, func(id string) (string, bool) { return id, true })
}

func (s *Server) handleHomeView(c *gin.Context) {
	viewer := viewerFor(c)
	site := s.siteConfig(c)
	page, limit := parsePagination(c, homePageLimit, maxGamesLimit)
	conn := s.db.WithContext(c.Request.Context())

	query := conn.Model(&db.Game{}).Where("archived = ?", false)
	search := strings.TrimSpace(c.Query("q"))
	query = matchGames(query, search)
	topics := lo.Filter(strings.Split(c.Query("topics"), ","), func(t string, _ int) bool {
		return db.ValidTopic(t)
	})
	if len(topics) > 0 {
		query = query.Where("topic IN ?", topics)
	}
	if viewer.SignedIn {
		query = query.Where("id NOT IN (?)", conn.Model(&db.UserGame{}).
			Select("game_id").
			Where("user_id = ? AND hidden = ?", viewer.ID, true))
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.pageError(c, err)
		return
	}
	column, ok := gameSortColumns[site.DefaultSort]
	if !ok {
		column = "title"
	}
	var games []db.Game
	if err := query.Order(column + " asc").Order("id asc").
		Offset((page - 1) * limit).Limit(limit).
		Find(&games).Error; err != nil {
		s.pageError(c, err)
		return
	}

	data := web.HomeData{
		Viewer:       viewer,
		Query:        search,
		Topics:       db.Topics,
		ActiveTopics: topics,
		Pagination:   buildPaginationData("/", page, limit, total),
	}
	if site.ShowWelcomeMessage && site.WelcomeMessage != nil {
		data.Welcome = *site.WelcomeMessage
	}
	played := map[string]bool{}
	if viewer.SignedIn {
		played = s.playedToday(c, viewer.ID)
		lists, err := s.userLists(c, viewer.ID)
		if err != nil {
			s.pageError(c, err)
			return
		}
		data.Lists = lo.Map(lists, func(l listView, _ int) web.ListCard {
			return web.ListCard{ID: l.ID, Name: l.Name, Color: l.Color, GameCount: l.GameCount}
		})
	}
	data.Games = gameCards(newGameViews(games, site.NewGameDays, s.now()), played)
	render(c, web.Home(data))
}

func (s *Server) handleListsView(c *gin.Context) {
	viewer, ok := signedInPage(c)
	if !ok {
		return
	}
	lists, err := s.userLists(c, viewer.ID)
	if err != nil {
		s.pageError(c, err)
		return
	}
	presets, err := s.presetLists(c, true)
	if err != nil {
		s.pageError(c, err)
		return
	}
	render(c, web.Lists(web.ListsData{
		Viewer: viewer,
		Limit:  s.siteConfig(c).MaxCustomLists,
		Lists: lo.Map(lists, func(l listView, _ int) web.ListCard {
			return web.ListCard{ID: l.ID, Name: l.Name, Color: l.Color, GameCount: l.GameCount}
		}),
		Presets: lo.Map(presets, func(p presetView, _ int) web.ListCard {
			return web.ListCard{
				ID:        p.ID,
				Name:      p.Name,
				Color:     p.Color,
				Icon:      p.Icon,
				GameCount: p.GameCount,
				Games: lo.Map(p.Games, func(g presetGame, _ int) web.GameCard {
					return web.GameCard{ID: g.ID, Title: g.Title, Topic: g.Topic, Link: g.Link}
				}),
			}
		}),
	}))
}

func (s *Server) handleSubmitView(c *gin.Context) {
	viewer, ok := signedInPage(c)
	if !ok {
		return
	}
	render(c, web.Submit(web.SubmitData{
		Viewer:  viewer,
		Enabled: s.siteConfig(c).EnableCommunitySubmissions,
		Topics:  db.Topics,
	}))
}

func (s *Server) handleDashboardView(c *gin.Context) {
	viewer, ok := signedInPage(c)
	if !ok {
		return
	}
	report, err := s.enhancedStats(c, viewer.ID)
	if err != nil {
		s.pageError(c, err)
		return
	}
	days := make([]string, 0, 366)
	end := stats.StartOfDay(s.now(), s.statsLoc)
	for day := end.AddDate(-1, 0, 1); !day.After(end); day = day.AddDate(0, 0, 1) {
		days = append(days, day.Format("2006-01-02"))
	}
	in := report.Insights
	render(c, web.Dashboard(web.DashboardData{
		Viewer:            viewer,
		Heatmap:           report.Heatmap,
		Days:              days,
		TotalPlays:        in.TotalPlays,
		BusiestDay:        in.BusiestDay,
		FavoriteTime:      in.FavoriteTime,
		CompletionRate:    in.CompletionRate,
		UniqueGamesPlayed: in.UniqueGamesPlayed,
		CurrentStreak:     in.CurrentStreak,
		LongestStreak:     in.LongestStreak,
	}))
}

func (s *Server) handleNewRaceView(c *gin.Context) {
	var games []db.Game
	if err := s.db.WithContext(c.Request.Context()).
		Where("archived = ?", false).
		Order("title asc").
		Find(&games).Error; err != nil {
		s.pageError(c, err)
		return
	}
	site := s.siteConfig(c)
	render(c, web.RaceNew(web.RaceNewData{
		Viewer: viewerFor(c),
		Games:  gameCards(newGameViews(games, site.NewGameDays, s.now()), nil),
	}))
}

func (s *Server) handleRaceStatsView(c *gin.Context) {
	viewer, ok := signedInPage(c)
	if !ok {
		return
	}
	render(c, web.RaceStats(viewer))
}

func (s *Server) handleRaceView(c *gin.Context) {
	var r db.Race
	if err := s.db.WithContext(c.Request.Context()).First(&r, "id = ?", c.Param("id")).Error; err != nil {
		c.Redirect(http.StatusFound, "/race/new")
		return
	}
	render(c, web.RaceView(web.RaceViewData{
		Viewer: viewerFor(c),
		RaceID: r.ID,
		Name:   r.Name,
		Status: r.Status,
	}))
}

// handleAdminView requires the stored role to reach the panel; the tabs
// shown follow the effective role.
func (s *Server) handleAdminView(c *gin.Context) {
	viewer := viewerFor(c)
	if !viewer.SignedIn || !roles.CanAccessAdmin(viewer.Role) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	conn := s.db.WithContext(c.Request.Context())
	page, limit := parsePagination(c, adminPageLimit, maxGamesLimit)

	var total int64
	if err := conn.Model(&db.Game{}).Count(&total).Error; err != nil {
		s.pageError(c, err)
		return
	}
	var games []db.Game
	if err := conn.Order("title asc").Order("id asc").
		Offset((page - 1) * limit).Limit(limit).
		Find(&games).Error; err != nil {
		s.pageError(c, err)
		return
	}
	var pending, users, presets int64
	counts := []struct {
		model any
		where string
		args  []any
		out   *int64
	}{
		{&db.GameSubmission{}, "status = ?", []any{db.SubmissionPending}, &pending},
		{&db.User{}, "", nil, &users},
		{&db.PresetList{}, "", nil, &presets},
	}
	for _, q := range counts {
		tx := conn.Model(q.model)
		if q.where != "" {
			tx = tx.Where(q.where, q.args...)
		}
		if err := tx.Count(q.out).Error; err != nil {
			s.pageError(c, err)
			return
		}
	}
	site := s.siteConfig(c)
	topics := append([]string(nil), db.Topics...)
	sort.Strings(topics)
	render(c, web.Admin(web.AdminData{
		Viewer:             viewer,
		Tabs:               web.AdminTabs(viewer.EffectiveRole),
		Games:              gameCards(newGameViews(games, site.NewGameDays, s.now()), nil),
		Pagination:         buildPaginationData("/admin", page, limit, total),
		PendingSubmissions: int(pending),
		Users:              int(users),
		PresetLists:        int(presets),
		Topics:             topics,
	}))
}
