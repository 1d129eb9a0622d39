package main

import (
	"log"

	"liveclass-backend/internal/config"
	"liveclass-backend/internal/database"
	"liveclass-backend/internal/server"
)

func main() {
	cfg := config.Load()

	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	srv := server.New(cfg, db)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
