package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Anirudh7369/UFDR-Agent/internal/config"
	"github.com/Anirudh7369/UFDR-Agent/internal/ingestion"
	"github.com/Anirudh7369/UFDR-Agent/internal/progress"
)

// Server handles HTTP requests
type Server struct {
	config  config.ServerConfig
	service *ingestion.Service
	server  *http.Server
}

// jobRequest is the body of a job submission.
type jobRequest struct {
	JobID         string   `json:"job_id"`
	ArchiveSource string   `json:"archive_source"`
	Domains       []string `json:"domains"`
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, svc *ingestion.Service) *Server {
	s := &Server{
		config:  cfg,
		service: svc,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/jobs", s.handleSubmitJob)
	mux.HandleFunc("/jobs/", s.handleJobSubpath)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSubmitJob accepts an extraction job and runs it asynchronously.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.ArchiveSource == "" {
		http.Error(w, "archive_source is required", http.StatusBadRequest)
		return
	}

	job := ingestion.Job{
		ID:            req.JobID,
		ArchiveSource: req.ArchiveSource,
		Domains:       req.Domains,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	// The job outlives the request; run it on a background context.
	go func() {
		if err := s.service.RunJob(context.Background(), job); err != nil {
			log.Printf("server: job %s failed: %v", job.ID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": job.ID,
		"status": "accepted",
	})
}

// handleJobSubpath routes /jobs/{id}/status and /jobs/{id}/records/{domain}.
func (s *Server) handleJobSubpath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/"), "/")
	switch {
	case len(parts) == 2 && parts[1] == "status":
		s.handleJobStatus(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "records":
		s.handleJobRecords(w, r, parts[0], parts[2])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	status, err := s.service.Status(r.Context(), jobID)
	if errors.Is(err, progress.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve status: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleJobRecords(w http.ResponseWriter, r *http.Request, jobID, domain string) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	records, total, err := s.service.Records(r.Context(), jobID, domain, limit, offset)
	if errors.Is(err, ingestion.ErrUnknownDomain) {
		http.Error(w, fmt.Sprintf("Unknown domain: %s", domain), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve records: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id":  jobID,
		"domain":  domain,
		"records": records,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func queryInt(r *http.Request, name string, defaultValue int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}
