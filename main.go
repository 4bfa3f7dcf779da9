package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/mehmetcc/school-auth-service/docs"
	"github.com/mehmetcc/school-auth-service/internal/authentication"
	"github.com/mehmetcc/school-auth-service/internal/password"
	"github.com/mehmetcc/school-auth-service/internal/person"
	"github.com/mehmetcc/school-auth-service/internal/utils"
)

// @title           School Authentication Service API
// @version         1.0
// @description     Registration, login and refresh-token lifecycle for school accounts.
// @termsOfService  http://example.com/terms/
//
// @host      localhost:8080
// @BasePath  /api/v1
//
// @securityDefinitions.basic  BasicAuth
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the access token.
func main() {
	// load config
	cfg, err := utils.LoadConfig(".env")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// init logger
	logger, err := newLogger(cfg.Environment)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	// init database
	db, err := utils.InitDatabase(cfg.Database.DSN())
	if err != nil {
		logger.Fatal("failed to connect to the database", zap.Error(err))
	}
	if err := db.AutoMigrate(&person.Person{}, &authentication.RefreshTokenRecord{}); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	//
	// WIRE UP SERVICES
	//
	personRepo := person.NewPersonRepository(db)
	personService := person.NewPersonService(personRepo, logger)

	var recordRepo authentication.RecordRepository
	switch cfg.RefreshStore {
	case utils.RefreshStoreRedis:
		client, err := utils.InitRedis(context.Background(), cfg.Redis)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		recordRepo = authentication.NewRedisRecordRepository(client, personRepo)
	default:
		recordRepo = authentication.NewRecordRepository(db)
	}
	logger.Info("refresh token store selected", zap.String("store", string(cfg.RefreshStore)))

	codec := utils.NewTokenCodec(cfg.Token)
	authService, err := authentication.NewAuthenticationService(
		personRepo,
		recordRepo,
		password.NewBcryptHasher(cfg.Security.BcryptCost),
		codec,
		authentication.ProfileFallbackFor(cfg.Environment),
		logger,
	)
	if err != nil {
		logger.Fatal("failed to build authentication service", zap.Error(err))
	}

	// init Gin router
	if cfg.Environment == utils.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	//
	// SWAGGER (protected by Basic Auth, not JWT)
	//
	swaggerGroup := router.Group("/swagger", gin.BasicAuth(gin.Accounts{
		cfg.Admin.Username: cfg.Admin.Password,
	}))
	swaggerGroup.GET("", ginSwagger.WrapHandler(swaggerFiles.Handler))
	swaggerGroup.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	requireAuth := authentication.AuthMiddleware(codec, logger)
	authentication.NewAuthHandler(api, authService, requireAuth, logger)

	adminGroup := api.Group("/", requireAuth, authentication.RoleMiddleware(person.Admin))
	person.NewPersonHandler(adminGroup, personService, logger)

	//
	// START SERVER
	//
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", addr), zap.String("env", string(cfg.Environment)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped gracefully")
	}
}

func newLogger(env utils.Environment) (*zap.Logger, error) {
	if env == utils.EnvProduction {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
