package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"syncplane/internal/auth"
	"syncplane/internal/events"
	"syncplane/internal/handler"
	"syncplane/internal/hub"
	"syncplane/internal/machines"
	"syncplane/internal/middleware"
	"syncplane/internal/sessions"
	"syncplane/internal/store"
)

type Deps struct {
	Store       store.Store
	TokenConfig auth.TokenConfig
	Logger      zerolog.Logger
}

// Wiring is everything NewRouter builds on top of Deps; the sweeper and
// tests reach the shared router and services through it.
type Wiring struct {
	Engine   *gin.Engine
	Hub      *hub.Hub
	Router   *events.Router
	Machines *machines.Service
	Sessions *sessions.Service
}

func NewRouter(deps Deps) *Wiring {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	wsHub := hub.New()
	eventRouter := events.NewRouter(deps.Store, wsHub, deps.Logger)
	machineSvc := machines.NewService(deps.Store, eventRouter, deps.Logger)
	sessionSvc := sessions.NewService(deps.Store, eventRouter, deps.Logger)

	authLimiter := middleware.NewThrottle(10, time.Minute)
	authHandler := &handler.AuthHandler{Store: deps.Store, TokenConfig: deps.TokenConfig, Limiter: authLimiter}
	r.POST("/v1/auth", authHandler.Auth)

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))

	machineHandler := &handler.MachineHandler{Machines: machineSvc}
	protected.GET("/machines", machineHandler.List)
	protected.GET("/machines/:id", machineHandler.Get)
	protected.POST("/machines", machineHandler.Register)

	sessionHandler := &handler.SessionHandler{Sessions: sessionSvc}
	protected.GET("/sessions", sessionHandler.List)
	protected.POST("/sessions", sessionHandler.GetOrCreate)

	protected.GET("/version", handler.GetVersion)

	updatesHandler := &handler.UpdatesHandler{
		Hub:         wsHub,
		Sessions:    sessionSvc,
		Machines:    machineSvc,
		TokenConfig: deps.TokenConfig,
	}
	r.GET("/v1/updates", updatesHandler.Serve)

	return &Wiring{
		Engine:   r,
		Hub:      wsHub,
		Router:   eventRouter,
		Machines: machineSvc,
		Sessions: sessionSvc,
	}
}
