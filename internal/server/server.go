package server

import (
	"net/http"
	"time"

	"dles/internal/config"
	"dles/internal/embedcheck"
	"dles/internal/raceevents"
	"dles/internal/roles"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options carries the collaborators New would otherwise build itself.
type Options struct {
	Logger  *zap.Logger
	Broker  raceevents.Broker
	Checker *embedcheck.Checker
	Now     func() time.Time
}

type Server struct {
	db       *gorm.DB
	cfg      config.Config
	logger   *zap.Logger
	broker   raceevents.Broker
	checker  *embedcheck.Checker
	sessions *SessionManager
	limiter  *rateLimiter
	ws       *wsHub
	statsLoc *time.Location
	now      func() time.Time
}

func New(conn *gorm.DB, cfg config.Config, opts Options) *Server {
	registerValidators()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	broker := opts.Broker
	if broker == nil {
		broker = raceevents.NewMemoryBroker()
	}
	checker := opts.Checker
	if checker == nil {
		checker = embedcheck.NewChecker(nil, time.Duration(cfg.EmbedCheckTimeoutSeconds)*time.Second)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc, err := time.LoadLocation(cfg.StatsTimezone)
	if err != nil {
		logger.Warn("unknown STATS_TIMEZONE, using UTC", zap.String("timezone", cfg.StatsTimezone), zap.Error(err))
		loc = time.UTC
	}
	sessions := NewSessionManager(conn, cfg.SessionSecret, time.Duration(cfg.SessionTTLHours)*time.Hour)
	sessions.now = now
	return &Server{
		db:       conn,
		cfg:      cfg,
		logger:   logger,
		broker:   broker,
		checker:  checker,
		sessions: sessions,
		limiter:  newRateLimiter(cfg.RateLimitPerMinute),
		ws:       newWSHub(),
		statsLoc: loc,
		now:      now,
	}
}

// Sessions exposes the session manager for operator tooling.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

func (s *Server) Handler() http.Handler {
	if s.cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(requestID(), s.requestLogger(), s.recovery())
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(s.corsMiddleware())
	}
	r.Use(s.loadSession())

	manageGames := s.requireRole(roles.CanManageGames)
	manageUsers := s.requireRole(roles.CanManageUsers)
	adminAccess := s.requireRole(roles.CanAccessAdmin)

	api := r.Group("/api")
	api.GET("/games", s.handleListGames)
	api.POST("/games", manageGames, s.handleCreateGame)
	api.GET("/games/:id", s.handleGetGame)
	api.PUT("/games/:id", manageGames, s.handleUpdateGame)
	api.DELETE("/games/:id", manageGames, s.handleDeleteGame)
	api.PATCH("/games/:id/embed", s.requireUser, s.handleSetEmbed)
	api.PATCH("/games/:id/play", s.handlePlayGame)

	api.GET("/settings", s.handleGetSettings)
	api.GET("/preset-lists", s.handlePublicPresetLists)

	api.GET("/auth/current-user", s.handleCurrentUser)
	api.POST("/auth/sign-out", s.handleSignOut)
	api.POST("/auth/view-as", s.requireUser, s.handleSetViewAs)
	api.DELETE("/auth/view-as", s.handleClearViewAs)

	api.POST("/submissions", s.requireUser, s.handleCreateSubmission)
	api.GET("/submissions/mine", s.requireUser, s.handleMySubmissions)

	api.GET("/lists", s.requireUser, s.handleListLists)
	api.POST("/lists", s.requireUser, s.handleCreateList)
	api.PATCH("/lists/:id", s.requireUser, s.handleUpdateList)
	api.DELETE("/lists/:id", s.requireUser, s.handleDeleteList)
	api.POST("/lists/:id/games", s.requireUser, s.handleAddListGame)
	api.DELETE("/lists/:id/games", s.requireUser, s.handleRemoveListGame)

	api.GET("/stats", s.requireUser, s.handleStats)
	api.GET("/stats/enhanced", s.requireUser, s.handleEnhancedStats)
	api.GET("/user-games", s.requireUser, s.handleListUserGames)
	api.PATCH("/user-games/:gameId", s.requireUser, s.handleUpdateUserGame)

	api.POST("/race", s.handleCreateRace)
	api.GET("/race/stats", s.requireUser, s.handleRaceStats)
	api.GET("/race/:id", s.handleGetRace)
	api.DELETE("/race/:id", s.handleDeleteRace)
	api.GET("/race/:id/events", s.handleRaceEvents)
	api.POST("/race/:id/join", s.handleJoinRace)
	api.POST("/race/:id/start", s.handleStartRace)
	api.POST("/race/:id/complete-game", s.handleCompleteRaceGame)

	api.GET("/users", manageUsers, s.handleListUsers)
	api.PATCH("/users", manageUsers, s.handleUpdateUserRole)
	api.DELETE("/users", s.requireUser, s.handleDeleteUser)

	admin := api.Group("/admin")
	admin.POST("/games/bulk", manageGames, s.handleBulkGames)
	admin.POST("/games/import", manageGames, s.handleImportGames)
	admin.POST("/games/check-embed", manageGames, s.handleScanEmbeds)
	admin.DELETE("/games/check-embed", manageGames, s.handleResetEmbeds)
	admin.POST("/games/check-embed/:id", manageGames, s.handleScanEmbed)
	admin.DELETE("/games/check-embed/:id", manageGames, s.handleResetEmbed)
	admin.GET("/export/games", manageUsers, s.handleExportGames)
	admin.GET("/export/users", manageUsers, s.handleExportUsers)
	admin.GET("/submissions", manageGames, s.handleAdminSubmissions)
	admin.PATCH("/submissions", manageGames, s.handleReviewSubmission)
	admin.GET("/preset-lists", adminAccess, s.handleAdminPresetLists)
	admin.POST("/preset-lists", adminAccess, s.handleCreatePresetList)
	admin.PATCH("/preset-lists/:id", adminAccess, s.handleUpdatePresetList)
	admin.DELETE("/preset-lists/:id", adminAccess, s.handleDeletePresetList)
	admin.POST("/preset-lists/:id/games", adminAccess, s.handleAddPresetGame)
	admin.DELETE("/preset-lists/:id/games", adminAccess, s.handleRemovePresetGame)
	admin.PATCH("/settings", manageUsers, s.handleUpdateSettings)

	r.GET("/ws/race/:id", s.handleRaceWebsocket)
	r.Static("/static", "static")

	pages := r.Group("/", s.maintenance())
	pages.GET("/", s.handleHomeView)
	pages.GET("/lists", s.handleListsView)
	pages.GET("/submit", s.handleSubmitView)
	pages.GET("/dashboard", s.handleDashboardView)
	pages.GET("/race/new", s.handleNewRaceView)
	pages.GET("/race/stats", s.handleRaceStatsView)
	pages.GET("/race/:id", s.handleRaceView)
	pages.GET("/admin", s.handleAdminView)

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "Not found")
	})
	return r
}
