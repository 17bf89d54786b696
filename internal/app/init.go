package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/config"
	"github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/security"
	internalsettings "github.com/router-for-me/GymDesk/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// defaultSQLitePath is the database file a single front desk runs on.
	defaultSQLitePath = "gymdesk.db"
	// minAdminPasswordLength is the shortest accepted admin password.
	minAdminPasswordLength = 6
	defaultSMTPPort        = 587
	databaseCheckTimeout   = 5 * time.Second
)

// ErrInitCompleted signals that setup finished and the server should restart
// with the written config.
var ErrInitCompleted = errors.New("init completed")

// InitRequest is the first-run setup form: where the data lives, who the first
// admin is and, optionally, how receipts are mailed.
type InitRequest struct {
	DatabaseType     string `json:"database_type"`
	DatabaseHost     string `json:"database_host"`
	DatabasePort     int    `json:"database_port"`
	DatabaseUser     string `json:"database_user"`
	DatabasePassword string `json:"database_password"`
	DatabaseName     string `json:"database_name"`
	DatabasePath     string `json:"database_path"`
	DatabaseSSLMode  string `json:"database_ssl_mode"`
	SiteName         string `json:"site_name"`
	AdminUsername    string `json:"admin_username" binding:"required"`
	AdminPassword    string `json:"admin_password" binding:"required"`

	Mail MailSetup `json:"mail"`
}

// MailSetup is the receipt mailer section of the setup form. An empty host
// keeps receipts in the log.
type MailSetup struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

// BuildDSN builds a database DSN from the init request. SQLite is the default.
func BuildDSN(req InitRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.DatabaseType)) {
	case "", "sqlite":
		path := strings.TrimSpace(req.DatabasePath)
		if path == "" {
			path = defaultSQLitePath
		}
		return db.SQLiteDSN(path), nil
	case "postgres":
		sslMode := req.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			req.DatabaseUser, req.DatabasePassword, req.DatabaseHost, req.DatabasePort, req.DatabaseName, sslMode), nil
	default:
		return "", fmt.Errorf("unsupported database type")
	}
}

// CheckDatabase opens the DSN and pings it.
func CheckDatabase(ctx context.Context, dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.WithError(errClose).Warn("init: close check connection")
		}
	}()
	pingCtx, cancel := context.WithTimeout(ctx, databaseCheckTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// validateInitRequest normalizes and validates the setup form.
func validateInitRequest(req *InitRequest) error {
	req.DatabaseType = strings.ToLower(strings.TrimSpace(req.DatabaseType))
	if req.DatabaseType == "" {
		req.DatabaseType = "sqlite"
	}

	switch req.DatabaseType {
	case "postgres":
		if req.DatabasePort <= 0 {
			return fmt.Errorf("Invalid database port")
		}
		required := []struct{ value, label string }{
			{req.DatabaseHost, "Database host"},
			{req.DatabaseUser, "Database username"},
			{req.DatabaseName, "Database name"},
			{req.DatabasePassword, "Database password"},
		}
		for _, field := range required {
			if strings.TrimSpace(field.value) == "" {
				return fmt.Errorf("%s is required", field.label)
			}
		}
	case "sqlite":
		if strings.TrimSpace(req.DatabasePath) == "" {
			req.DatabasePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("Unsupported database type")
	}

	req.SiteName = strings.TrimSpace(req.SiteName)
	if req.SiteName == "" {
		req.SiteName = internalsettings.DefaultSiteName
	}
	req.AdminUsername = strings.TrimSpace(req.AdminUsername)
	if len(req.AdminPassword) < minAdminPasswordLength {
		return fmt.Errorf("Password must be at least 6 characters")
	}

	req.Mail.Host = strings.TrimSpace(req.Mail.Host)
	if req.Mail.Host != "" {
		if req.Mail.Port <= 0 {
			req.Mail.Port = defaultSMTPPort
		}
		if strings.TrimSpace(req.Mail.From) == "" {
			return fmt.Errorf("Receipt sender address is required when mail is configured")
		}
	}
	return nil
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host        string     `yaml:"host"`
	Port        int        `yaml:"port"`
	DatabaseDSN string     `yaml:"database-dsn"`
	Debug       bool       `yaml:"debug"`
	JWT         jwtCfg     `yaml:"jwt"`
	TLS         tlsCfg     `yaml:"tls"`
	SMTP        smtpCfg    `yaml:"smtp"`
	Tracing     tracingCfg `yaml:"tracing"`
}

type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

type tlsCfg struct {
	Enable bool   `yaml:"enable"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`
}

type smtpCfg struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type tracingCfg struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service-name"`
	SampleRatio float64 `yaml:"sample-ratio"`
}

// WriteConfigFile writes the initial config file with a fresh JWT secret. The
// file holds credentials, so it is only readable by the owner.
func WriteConfigFile(configPath, dsn string, port int, mail MailSetup) error {
	secret, errSecret := security.GenerateRandomString(32)
	if errSecret != nil {
		return fmt.Errorf("generate jwt secret: %w", errSecret)
	}
	if mail.Port <= 0 {
		mail.Port = defaultSMTPPort
	}
	cfg := configFile{
		Port:        port,
		DatabaseDSN: dsn,
		JWT:         jwtCfg{Secret: secret, Expiry: "720h"},
		SMTP: smtpCfg{
			Host:     mail.Host,
			Port:     mail.Port,
			Username: mail.Username,
			Password: mail.Password,
			From:     mail.From,
		},
		Tracing: tracingCfg{ServiceName: "gymdesk", SampleRatio: 1},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if errMkdir := os.MkdirAll(filepath.Dir(configPath), 0o755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}
	if errWrite := os.WriteFile(configPath, data, 0o600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	return nil
}

// CreateAdminUser migrates the database behind dsn and creates the first admin.
func CreateAdminUser(dsn string, username, password, siteName string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateAdminUserWithConn(conn, username, password, siteName)
}

// CreateAdminUserWithConn creates the first super admin and records the gym
// name in one transaction.
func CreateAdminUserWithConn(conn *gorm.DB, username, password, siteName string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}
	siteName = strings.TrimSpace(siteName)
	if siteName == "" {
		siteName = internalsettings.DefaultSiteName
	}
	siteValue, errMarshal := json.Marshal(siteName)
	if errMarshal != nil {
		return fmt.Errorf("marshal site name: %w", errMarshal)
	}

	now := time.Now().UTC()
	return conn.Transaction(func(tx *gorm.DB) error {
		admin := models.Admin{
			Username:     username,
			Password:     hashedPassword,
			Active:       true,
			IsSuperAdmin: true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if errCreate := tx.Create(&admin).Error; errCreate != nil {
			return fmt.Errorf("create admin: %w", errCreate)
		}
		setting := models.Setting{Key: internalsettings.SiteNameKey, Value: siteValue, UpdatedAt: now}
		errUpsert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&setting).Error
		if errUpsert != nil {
			return fmt.Errorf("store site name: %w", errUpsert)
		}
		return nil
	})
}

// initServer serves first-run setup until a config file has been written.
type initServer struct {
	configPath string
	port       int
	done       chan struct{}
	finish     sync.Once
}

// RunInitServer starts the setup server used when no config exists. It returns
// ErrInitCompleted once setup succeeded.
func RunInitServer(ctx context.Context, cfg config.AppConfig, port int) error {
	s := &initServer{
		configPath: config.ResolveConfigPath(cfg.ConfigPath),
		port:       port,
		done:       make(chan struct{}),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.GET("/v0/init/status", s.status)
	router.POST("/v0/init/setup", s.setup)
	router.NoRoute(s.notReady)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Error("init server shutdown error")
		}
	}()

	log.Infof("starting init server on %s (config not found at %s)", srv.Addr, s.configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	select {
	case <-s.done:
		return ErrInitCompleted
	default:
		return nil
	}
}

func (s *initServer) status(c *gin.Context) {
	c.JSON(http.StatusOK, InitStatusResponse{Initialized: ConfigExists(s.configPath)})
}

func (s *initServer) setup(c *gin.Context) {
	if ConfigExists(s.configPath) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
		return
	}
	var req InitRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
		return
	}
	if errValidate := validateInitRequest(&req); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}
	dsn, errBuild := BuildDSN(req)
	if errBuild != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBuild.Error()})
		return
	}
	if errCheck := CheckDatabase(c.Request.Context(), dsn); errCheck != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Database connection failed: %v", errCheck)})
		return
	}
	if errWrite := WriteConfigFile(s.configPath, dsn, s.port, req.Mail); errWrite != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to write config: %v", errWrite)})
		return
	}
	if errAdmin := CreateAdminUser(dsn, req.AdminUsername, req.AdminPassword, req.SiteName); errAdmin != nil {
		if errRemove := os.Remove(s.configPath); errRemove != nil {
			log.WithError(errRemove).Error("init: remove config file")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
		return
	}

	log.Infof("init: %q set up with admin %q", req.SiteName, req.AdminUsername)
	c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	// Let the response flush before the listener closes.
	time.AfterFunc(500*time.Millisecond, func() {
		s.finish.Do(func() { close(s.done) })
	})
}

func (s *initServer) notReady(c *gin.Context) {
	if ConfigExists(s.configPath) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System initializing, please restart the server"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "System not initialized, POST /v0/init/setup first"})
}

// corsMiddleware lets a setup page served from another origin reach the init
// server.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
