package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-medical-reservation/config"
	deliveryHttp "go-medical-reservation/internal/delivery/http"
	"go-medical-reservation/internal/delivery/http/handler"
	"go-medical-reservation/internal/delivery/http/middleware"
	domainRepo "go-medical-reservation/internal/domain/repository"
	"go-medical-reservation/internal/infrastructure/cache"
	"go-medical-reservation/internal/infrastructure/database"
	"go-medical-reservation/internal/repository"
	"go-medical-reservation/internal/service"
	"go-medical-reservation/internal/usecase"
	"go-medical-reservation/pkg/clock"
	"go-medical-reservation/pkg/jwt"
	"go-medical-reservation/pkg/validator"

	"github.com/gorilla/handlers"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds all dependencies for the application
type App struct {
	Config      *config.Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	Server      *http.Server
	Sweeper     *service.ExpirySweeper
	AuthUsecase usecase.AuthUsecase

	accessLog io.Closer
}

// New creates a new App instance with all dependencies initialized
func New() (*App, error) {
	app := &App{}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	// Setup logger
	app.Log = setupLogger(cfg.App)
	app.Log.Info("Configuration loaded successfully")

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.DB, app.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = db

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cfg.Redis, app.Log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	app.RedisClient = redisClient

	// Initialize all layers
	app.initialize()

	return app, nil
}

// NewMigrator loads configuration and opens a migrator without starting the app
func NewMigrator() (*database.Migrator, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return database.NewMigrator(cfg.DB, setupLogger(cfg.App))
}

// setupLogger configures the logrus logger
func setupLogger(cfg config.AppConfig) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// initialize wires repositories, usecases and the HTTP server
func (app *App) initialize() {
	cfg := app.Config
	log := app.Log

	// Initialize JWT service
	jwtService := jwt.NewJWTService(cfg.JWT)

	// Initialize validator
	customValidator := validator.NewValidator()

	// Initialize repositories
	transactor := repository.NewTransactor(app.DB)
	userRepo := repository.NewUserRepository()
	doctorProfileRepo := repository.NewDoctorProfileRepository()
	doctorScheduleRepo := repository.NewDoctorScheduleRepository()
	bookingRepo := repository.NewBookingRepository()
	auditLogRepo := repository.NewAuditLogRepository()
	holdLedger := newHoldLedger(cfg.Reservation, app.RedisClient, log)

	// Initialize services
	auditService := service.NewAuditService(transactor, log, auditLogRepo)
	slotLocker := service.NewSlotLocker(cfg.Reservation.LockTimeout, log)
	systemClock := clock.NewSystem()
	slotLocation := loadLocation(cfg.DB.TimeZone, log)

	// Initialize usecases
	authUsecase := usecase.NewAuthUsecase(transactor, log, userRepo, auditService, jwtService, app.RedisClient)
	doctorUsecase := usecase.NewDoctorUsecase(transactor, log, userRepo, doctorProfileRepo, auditService)
	doctorScheduleUsecase := usecase.NewDoctorScheduleUsecase(transactor, log, doctorScheduleRepo, doctorProfileRepo, bookingRepo, auditService)
	reservationUsecase := usecase.NewReservationUsecase(transactor, log, holdLedger, slotLocker,
		bookingRepo, doctorScheduleRepo, doctorProfileRepo, userRepo, auditService,
		usecase.WithHoldTTL(cfg.Reservation.HoldTTL),
		usecase.WithClock(systemClock),
		usecase.WithLocation(slotLocation),
	)
	availabilityUsecase := usecase.NewAvailabilityUsecase(transactor, log, systemClock, slotLocation, holdLedger, bookingRepo, doctorScheduleRepo, doctorProfileRepo)
	auditLogUsecase := usecase.NewAuditLogUsecase(transactor, log, auditLogRepo)
	app.AuthUsecase = authUsecase

	// Background expiry of abandoned holds
	app.Sweeper = service.NewExpirySweeper(reservationUsecase, log, cfg.Reservation)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authUsecase, customValidator)
	doctorHandler := handler.NewDoctorHandler(doctorUsecase, customValidator)
	doctorScheduleHandler := handler.NewDoctorScheduleHandler(doctorScheduleUsecase, customValidator)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityUsecase)
	appointmentHandler := handler.NewAppointmentHandler(reservationUsecase, customValidator)
	adminAppointmentHandler := handler.NewAdminAppointmentHandler(reservationUsecase, customValidator)
	auditLogHandler := handler.NewAuditLogHandler(auditLogUsecase)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService, app.RedisClient)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.App.CORSAllowedOrigins)

	// Initialize router
	router := deliveryHttp.NewRouter(
		authHandler,
		doctorHandler,
		doctorScheduleHandler,
		availabilityHandler,
		appointmentHandler,
		adminAppointmentHandler,
		auditLogHandler,
		authMiddleware,
		corsMiddleware,
	)

	// Access log and panic recovery around every request
	accessLog := log.Writer()
	app.accessLog = accessLog
	httpHandler := handlers.RecoveryHandler(
		handlers.RecoveryLogger(log),
		handlers.PrintRecoveryStack(cfg.App.Env == "development"),
	)(handlers.CombinedLoggingHandler(accessLog, router.Setup()))

	// Create server
	app.Server = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.App.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newHoldLedger picks the hold ledger backend. The memory ledger only
// serializes holds inside this process.
func newHoldLedger(cfg config.ReservationConfig, redisClient *redis.Client, log *logrus.Logger) domainRepo.HoldLedger {
	if cfg.HoldLedger == config.HoldLedgerMemory {
		log.Warn("Using in-memory hold ledger, run a single instance only")
		return repository.NewMemoryHoldLedger(cfg.TombstoneTTL)
	}
	return repository.NewRedisHoldLedger(redisClient, log, cfg.HoldGrace, cfg.TombstoneTTL)
}

func loadLocation(name string, log *logrus.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnf("Unknown time zone %q, falling back to UTC: %+v", name, err)
		return time.UTC
	}
	return loc
}

// Run starts the HTTP server and the sweeper, then handles graceful shutdown
func (app *App) Run() {
	app.Sweeper.Start()

	// Start server in goroutine
	go func() {
		app.Log.Infof("Server starting on port %s", app.Config.App.Port)
		app.Log.Infof("Environment: %s", app.Config.App.Env)
		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	app.waitForShutdown()
}

// waitForShutdown blocks until an interrupt signal is received
func (app *App) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Log.Info("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server gracefully
	if err := app.Server.Shutdown(ctx); err != nil {
		app.Log.Errorf("Server forced to shutdown: %v", err)
	}

	// Stop sweeper before the stores it talks to go away
	app.Sweeper.Stop()

	// Close connections
	app.Close()

	app.Log.Info("Server shutdown complete")
}

// Close closes all connections (database, redis, etc.)
func (app *App) Close() {
	// Close database connection
	if app.DB != nil {
		sqlDB, err := app.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	// Close Redis connection
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}

	if app.accessLog != nil {
		app.accessLog.Close()
	}
}
