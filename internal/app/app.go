package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/router-for-me/GymDesk/internal/config"
	"github.com/router-for-me/GymDesk/internal/db"
	internalhttp "github.com/router-for-me/GymDesk/internal/http/api/admin"
	"github.com/router-for-me/GymDesk/internal/http/api/front"
	"github.com/router-for-me/GymDesk/internal/http/middleware"
	"github.com/router-for-me/GymDesk/internal/notify"
	"github.com/router-for-me/GymDesk/internal/ratelimit"
	"github.com/router-for-me/GymDesk/internal/reconcile"
	internalsettings "github.com/router-for-me/GymDesk/internal/settings"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/router-for-me/GymDesk/internal/tracing"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conn, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// RunSweep expires every membership whose end date has passed and reports
// how many changed.
func RunSweep(ctx context.Context, cfg config.AppConfig) (int, error) {
	conn, err := openDatabase(cfg)
	if err != nil {
		return 0, err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return 0, errMigrate
	}
	if errRefresh := internalsettings.Refresh(ctx, conn); errRefresh != nil {
		return 0, fmt.Errorf("load settings: %w", errRefresh)
	}
	engine := reconcile.New(store.New(conn), reconcile.Options{})
	return engine.SweepExpirations(ctx, time.Now().UTC())
}

func openDatabase(cfg config.AppConfig) (*gorm.DB, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return nil, err
	}
	return db.Open(dsn)
}

// RunServer boots the back-office API with its background workers and blocks
// until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	serverCfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	if serverCfg.Port == config.DefaultPort && defaultPort > 0 {
		serverCfg.Port = defaultPort
	}
	if serverCfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := internalsettings.Refresh(ctx, conn); errRefresh != nil {
		return fmt.Errorf("load settings: %w", errRefresh)
	}

	tracingCfg, err := config.LoadTracingConfig(configPath)
	if err != nil {
		return err
	}
	shutdownTracing, err := tracing.Setup(ctx, tracingCfg)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errFlush := shutdownTracing(flushCtx); errFlush != nil {
			log.WithError(errFlush).Warn("tracing shutdown failed")
		}
	}()

	jwtConfig, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtConfig.Secret) == "" {
		return errors.New("jwt secret is not configured")
	}

	dispatcher, err := newReceiptDispatcher(configPath)
	if err != nil {
		return err
	}
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	dispatcher.Start(workerCtx)

	st := store.New(conn)
	engine := reconcile.New(st, reconcile.Options{Notifier: dispatcher})
	engine.Sweeper().Start(workerCtx)
	limiter := ratelimit.NewManager(nil, nil, nil)

	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)

	if !serverCfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLog())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	internalhttp.RegisterAdminRoutes(router, st, engine, jwtConfig, limiter)
	front.RegisterFrontRoutes(router, st)
	registerInitRoutes(router, conn, dsn, &initState)

	srv := &http.Server{
		Addr:              serverCfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("starting gymdesk on %s with config=%s", srv.Addr, configPath)
		var errServe error
		if serverCfg.TLS.Enable {
			errServe = srv.ListenAndServeTLS(serverCfg.TLS.Cert, serverCfg.TLS.Key)
		} else {
			errServe = srv.ListenAndServe()
		}
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			serveErr <- errServe
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case errServe, ok := <-serveErr:
		if ok {
			return errServe
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Error("server shutdown error")
	}
	stopWorkers()
	dispatcher.Wait()
	log.Info("gymdesk stopped")
	return nil
}

// newReceiptDispatcher picks SMTP delivery when mail is configured and falls
// back to logging receipts.
func newReceiptDispatcher(configPath string) (*notify.Dispatcher, error) {
	smtpCfg, err := config.LoadSMTPConfig(configPath)
	if err != nil {
		return nil, err
	}
	var sender notify.Sender = notify.LogNotifier{}
	if smtpCfg.Enabled() {
		sender = notify.NewSMTPNotifier(smtpCfg)
		log.Infof("receipts will be mailed via %s:%d", smtpCfg.Host, smtpCfg.Port)
	} else {
		log.Info("smtp not configured, receipts will be logged")
	}
	return notify.NewDispatcher(sender, 0), nil
}

// registerInitRoutes serves first-run setup on a configured database that has
// no admin yet.
func registerInitRoutes(router *gin.Engine, conn *gorm.DB, dsn string, initState *atomic.Bool) {
	router.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initState.Load()})
	})
	router.GET("/v0/init/prefill", func(c *gin.Context) {
		prefill, errPrefill := initPrefillFromDSN(dsn)
		if errPrefill != nil {
			c.JSON(http.StatusOK, gin.H{"locked": true})
			return
		}
		c.JSON(http.StatusOK, struct {
			Locked bool `json:"locked"`
			initPrefill
		}{Locked: true, initPrefill: prefill})
	})
	router.POST("/v0/init/setup", func(c *gin.Context) {
		if ok, errInit := HasAdminInitialized(conn); errInit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		} else if ok {
			initState.Store(true)
			c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
			return
		}

		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}
		req.SiteName = strings.TrimSpace(req.SiteName)
		if req.SiteName == "" {
			req.SiteName = internalsettings.DefaultSiteName
		}
		req.AdminUsername = strings.TrimSpace(req.AdminUsername)
		if req.AdminUsername == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Admin username is required"})
			return
		}
		if len(req.AdminPassword) < minAdminPasswordLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters"})
			return
		}

		if errAdmin := CreateAdminUserWithConn(conn, req.AdminUsername, req.AdminPassword, req.SiteName); errAdmin != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
			return
		}
		if errRefresh := internalsettings.Refresh(c.Request.Context(), conn); errRefresh != nil {
			log.WithError(errRefresh).Warn("init: refresh settings failed")
		}
		initState.Store(true)
		c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	})
}
