package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lionlink/lionlink/apperr"
	"github.com/lionlink/lionlink/browser"
	"github.com/lionlink/lionlink/gateway"
	"github.com/lionlink/lionlink/ledger"
	"github.com/lionlink/lionlink/linking"
	"github.com/lionlink/lionlink/menus"
	"github.com/lionlink/lionlink/portal"
	"github.com/lionlink/lionlink/session"
	"github.com/lionlink/lionlink/store"
	"github.com/lionlink/lionlink/users"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var logrusLogger = logrus.New()

// getMainEngine assembles the gin engine with every route and middleware.
func getMainEngine(cfg *Config, userService *users.Service, linkService *linking.Service, auth *gateway.JWTAuth) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	route := gin.New()
	// a panic answers the structured error shape, never a stack trace
	route.Use(gin.CustomRecovery(func(c *gin.Context, _ any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error", "code": apperr.ErrInternal.Code})
	}))
	route.Use(gateway.RequestID())
	route.Use(gateway.RequestLogger(logrusLogger))
	route.Use(gateway.Instrumentation())
	route.Use(gateway.OptionsMiddleware)
	route.HandleMethodNotAllowed = true

	route.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "no such endpoint", "code": apperr.ErrNotFound.Code})
	})

	route.GET("/metrics", gin.WrapH(promhttp.Handler()))
	route.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": true})
	})

	route.POST("/users/register", userService.Register)
	route.POST("/users/login", userService.Login)

	pennState := route.Group("/penn-state")
	pennState.Use(auth.AuthMiddleware())
	{
		pennState.POST("/login", linkService.Login)
		pennState.GET("/check-approval", linkService.CheckApproval)
		pennState.POST("/transactions/sync", linkService.SyncTransactions)
		pennState.GET("/transactions/sync-status", linkService.SyncStatus)
		pennState.POST("/unlink", linkService.Unlink)
	}
	return route
}

func main() {
	logrusLogger.SetFormatter(&logrus.JSONFormatter{})
	logrusLogger.SetReportCaller(true)

	cfg, err := loadConfig(os.Getenv("LIONLINK_CONFIG"))
	if err != nil {
		logrusLogger.Fatalf("error in parsing config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		logrusLogger.Fatal("jwt.secret must be configured")
	}

	db, err := store.Open(cfg.Database.Path, cfg.Database.LogSQL)
	if err != nil {
		logrusLogger.Fatalf("error in connecting to db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		logrusLogger.Fatalf("error in migrating db: %v", err)
	}

	auth := &gateway.JWTAuth{
		Key:      []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Lifetime: time.Duration(cfg.JWT.ExpireHours) * time.Hour,
	}

	flow := &portal.Flow{
		Config: portal.Config{
			ProviderURL:    cfg.Portal.ProviderURL,
			PortalURL:      cfg.Portal.PortalURL,
			PortalPattern:  cfg.Portal.PortalPattern,
			LedgerURL:      cfg.Portal.LedgerURL,
			NavTimeout:     time.Duration(cfg.Portal.NavTimeoutSec) * time.Second,
			LandingTimeout: time.Duration(cfg.Portal.LandTimeoutSec) * time.Second,
		},
		Logger: logrusLogger,
	}

	registry := session.NewRegistry(cfg.SessionTTL(), logrusLogger)
	defer registry.Close()

	coordinator := &ledger.Coordinator{
		DB:             db,
		Engine:         &ledger.Engine{Flow: flow, Logger: logrusLogger},
		Logger:         logrusLogger,
		LookbackMonths: cfg.Sync.LookbackMonths,
	}

	linkService := &linking.Service{
		Db:       db,
		Registry: registry,
		Launcher: &browser.ChromeLauncher{
			Headless:  cfg.Browser.Headless,
			UserAgent: cfg.Browser.UserAgent,
			Logger:    logrusLogger,
		},
		Flow:        flow,
		Coordinator: coordinator,
		Logger:      logrusLogger,
	}

	userService := &users.Service{Db: db, Auth: auth, Logger: logrusLogger}

	if cfg.Menu.URL != "" {
		scraper := &menus.Scraper{Db: db, Logger: logrusLogger, MenuURL: cfg.Menu.URL}
		go func() {
			if err := scraper.EnsureToday(context.Background()); err != nil {
				logrusLogger.WithField("error", err.Error()).Warn("startup menu scrape failed")
			}
		}()
		c := cron.New()
		if _, err := c.AddFunc(cfg.Menu.Cron, func() {
			day := time.Now().Format("2006-01-02")
			if err := scraper.ScrapeDay(context.Background(), day); err != nil {
				logrusLogger.WithField("error", err.Error()).Warn("scheduled menu scrape failed")
			}
		}); err != nil {
			logrusLogger.Fatalf("invalid menu cron spec: %v", err)
		}
		c.Start()
		defer c.Stop()
	}

	engine := getMainEngine(cfg, userService, linkService, auth)
	logrusLogger.WithField("address", cfg.Server.Address).Info("lionlink listening")
	if err := engine.Run(cfg.Server.Address); err != nil {
		logrusLogger.Fatalf("server stopped: %v", err)
	}
}
