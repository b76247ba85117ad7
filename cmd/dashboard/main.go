package main

import (
	"flag"
	"log"

	"github.com/gridops/grid-dqn-trainer/internal/api"
	"github.com/gridops/grid-dqn-trainer/internal/database"
)

// dashboard serves the analytics API over an existing training database.
func main() {
	var (
		dbPath = flag.String("db", "training.db", "Path to SQLite analytics database")
		port   = flag.String("port", "8080", "HTTP port to listen on")
	)
	flag.Parse()

	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	server := api.NewServer(repo, *port)

	log.Printf("Serving training analytics from %s on :%s", *dbPath, *port)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
