package routes

import (
	"net/http"

	"water-meter-platform/internal/assignment"
	"water-meter-platform/internal/command"
	commandlogrepo "water-meter-platform/internal/commandlog/repository"
	"water-meter-platform/internal/config"
	"water-meter-platform/internal/database"
	"water-meter-platform/internal/delivery/http/handler"
	deviceservice "water-meter-platform/internal/device/service"
	"water-meter-platform/internal/logger"
	"water-meter-platform/internal/middleware"
	"water-meter-platform/internal/telemetry"
	userservice "water-meter-platform/internal/user/service"

	devicerepo "water-meter-platform/internal/device/repository"
	readingrepo "water-meter-platform/internal/reading/repository"
	userrepo "water-meter-platform/internal/user/repository"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires repositories, the assignment manager, the ingestion
// pipeline and all HTTP handlers onto a Gin engine. The pipeline is returned
// alongside the engine so main can attach the MQTT ingress to the same
// instance.
func SetupRoutes(cfg *config.Config, db *database.Database) (*gin.Engine, *telemetry.Pipeline) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware in order: recovery, request ID, logging, security headers,
	// CORS, request size limit, rate limit.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))
	router.Use(middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize))
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst))

	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "Database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "Service is running",
		})
	})

	deviceRepository := devicerepo.NewRepository(db)
	userRepository := userrepo.NewRepository(db)
	readingRepository := readingrepo.NewRepository(db)
	commandLogRepository := commandlogrepo.NewRepository(db)

	assignmentManager := assignment.NewManager(deviceRepository, userRepository)
	pipeline := telemetry.NewPipeline(deviceRepository, readingRepository, commandLogRepository)
	commandService := command.NewService(deviceRepository, readingRepository, commandLogRepository)

	deviceService := deviceservice.NewService(deviceRepository, readingRepository, assignmentManager)
	userService := userservice.NewService(userRepository, assignmentManager, cfg)

	deviceHandler := handler.NewDeviceHandler(deviceService)
	userHandler := handler.NewUserHandler(userService)
	meterDataHandler := handler.NewMeterDataHandler(pipeline)
	commandHandler := handler.NewCommandHandler(commandService, commandLogRepository)
	assignmentHandler := handler.NewAssignmentHandler(assignmentManager)

	v1 := router.Group("/api/v1")
	{
		userHandler.RegisterPublicRoutes(v1)

		// Meter gateways post reports unauthenticated, same as the MQTT
		// ingress.
		meterDataHandler.RegisterRoutes(v1)

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			userHandler.RegisterRoutes(protected)
			deviceHandler.RegisterRoutes(protected)

			technician := protected.Group("")
			technician.Use(middleware.RoleMiddleware("technician", "admin"))
			{
				commandHandler.RegisterTechnicianRoutes(technician)
			}

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminOnly())
			{
				userHandler.RegisterAdminRoutes(admin)
				deviceHandler.RegisterAdminRoutes(admin)
				meterDataHandler.RegisterAdminRoutes(admin)
				assignmentHandler.RegisterAdminRoutes(admin)
			}
		}
	}

	logger.Info("All routes initialized")
	return router, pipeline
}
