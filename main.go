package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"service_hours_backend/config"
	"service_hours_backend/db"
	"service_hours_backend/domain/registration"
	"service_hours_backend/events"
	"service_hours_backend/routes"
	"service_hours_backend/storage/local"
)

const publishTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatalf("Error loading policy: %v", err)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	database, err := db.Initialize(startCtx, cfg.Database)
	if err != nil {
		log.Fatalf("Error connecting to the database: %v", err)
	}
	defer database.Close()

	if err := db.InitSchema(startCtx, database); err != nil {
		log.Fatalf("Error initializing database schema: %v", err)
	}
	if cfg.SeedData {
		if err := db.SeedData(startCtx, database, time.Now()); err != nil {
			log.Printf("Warning: Error seeding initial data: %v", err)
		}
	}

	evidence, err := local.New(cfg.EvidenceDir)
	if err != nil {
		log.Fatalf("Error preparing evidence storage: %v", err)
	}

	var publisher events.Publisher = events.LogPublisher{}
	if cfg.Redis.Addr != "" {
		client := events.NewRedisClient(cfg.Redis)
		defer client.Close()
		if err := client.Ping(startCtx).Err(); err != nil {
			log.Printf("Warning: Redis at %s is unreachable, events will be retried per publish: %v", cfg.Redis.Addr, err)
		}
		publisher = events.NewRedisPublisher(client, cfg.EventsChannel)
	}

	svc := registration.NewService(
		db.NewStore(database),
		evidence,
		events.Async(publisher, publishTimeout),
		policy,
	)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
	}
	corsConfig.AllowMethods = []string{
		"GET",
		"POST",
	}
	r.Use(cors.New(corsConfig))

	routes.SetupRoutes(r, database, svc, []byte(cfg.JWTSecret))

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("Listening on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}
}
