package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Anirudh7369/UFDR-Agent/internal/archive"
	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/ingestion"
	"github.com/Anirudh7369/UFDR-Agent/internal/progress"
	"github.com/Anirudh7369/UFDR-Agent/internal/server"
	"github.com/Anirudh7369/UFDR-Agent/internal/storage"
)

func main() {
	archiveSource := flag.String("archive", "", "Run one extraction job against this archive and exit")
	jobID := flag.String("job", "", "Job id for -archive mode (generated when empty)")
	domainList := flag.String("domains", "", "Comma-separated domains for -archive mode (all when empty)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize record storage
	store, err := storage.NewRecordStore(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}
	defer store.Close()

	// Initialize progress publisher
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher, err := progress.NewPublisher(ctx, cfg.Progress)
	if err != nil {
		log.Fatal("Failed to initialize progress publisher:", err)
	}
	defer publisher.Close(context.Background())

	// Initialize archive stager
	stager, err := archive.NewStager(cfg.Stager)
	if err != nil {
		log.Fatal("Failed to initialize archive stager:", err)
	}

	// Initialize ingestion service
	svc := ingestion.NewService(cfg, stager, store, publisher)

	// One-shot mode: run a single job and exit
	if *archiveSource != "" {
		runOnce(ctx, svc, publisher, *archiveSource, *jobID, *domainList)
		return
	}

	// Initialize HTTP server for API endpoints
	httpServer := server.NewServer(cfg.Server, svc)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.Server.Port)
		if err := httpServer.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutdown signal received, gracefully shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown services
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	cancel()
	log.Println("Shutdown complete")
}

// runOnce executes one extraction job in the foreground and prints its final
// per-domain outcome.
func runOnce(ctx context.Context, svc *ingestion.Service, publisher progress.Publisher, source, jobID, domainList string) {
	job := ingestion.Job{
		ID:            jobID,
		ArchiveSource: source,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if domainList != "" {
		for _, d := range strings.Split(domainList, ",") {
			if d = strings.TrimSpace(d); d != "" {
				job.Domains = append(job.Domains, d)
			}
		}
	}

	log.Printf("Running extraction job %s", job.ID)
	if err := svc.RunJob(ctx, job); err != nil {
		log.Fatal("Extraction job failed:", err)
	}

	status, err := publisher.Snapshot(ctx, job.ID)
	if err != nil {
		log.Fatal("Failed to read job status:", err)
	}
	log.Printf("Job %s finished: %s", status.JobID, status.OverallStatus)
	for domain, d := range status.Domains {
		if d.Error != "" {
			log.Printf("  %s: %s (%d/%d) error: %s", domain, d.Status, d.Processed, d.Total, d.Error)
			continue
		}
		log.Printf("  %s: %s (%d/%d)", domain, d.Status, d.Processed, d.Total)
	}
}
