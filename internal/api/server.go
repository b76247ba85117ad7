package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/gridops/grid-dqn-trainer/internal/database"
)

// Server exposes a read-only analytics API over a training database,
// for dashboards watching runs.
type Server struct {
	router *gin.Engine
	repo   *database.Repository
	port   string
}

// NewServer creates a new API server
func NewServer(repo *database.Repository, port string) *Server {
	router := gin.Default()

	// Configure CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	config.AllowMethods = []string{"GET", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	server := &Server{
		router: router,
		repo:   repo,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	// Training run endpoints
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
	api.GET("/runs/:id/metrics", s.getMetrics)
	api.GET("/runs/:id/metrics/latest", s.getLatestMetric)
	api.GET("/runs/:id/episodes", s.getEpisodes)
	api.GET("/runs/:id/events", s.getEvents)
	api.GET("/runs/:id/summary", s.getRunSummary)

	// Health check
	api.GET("/health", s.healthCheck)
}

// Start starts the server
func (s *Server) Start() error {
	return s.router.Run(":" + s.port)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now(),
	})
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.repo.ListRuns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, runs)
}

func (s *Server) getRun(c *gin.Context) {
	id := c.Param("id")

	run, err := s.repo.GetRun(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Training run not found"})
		return
	}

	c.JSON(http.StatusOK, run)
}

func (s *Server) getMetrics(c *gin.Context) {
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))

	metrics, err := s.repo.GetStepMetrics(id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, metrics)
}

func (s *Server) getLatestMetric(c *gin.Context) {
	id := c.Param("id")

	metric, err := s.repo.GetLatestStepMetric(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No metrics for run"})
		return
	}

	c.JSON(http.StatusOK, metric)
}

func (s *Server) getEpisodes(c *gin.Context) {
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	episodes, err := s.repo.GetEpisodes(id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, episodes)
}

func (s *Server) getEvents(c *gin.Context) {
	id := c.Param("id")
	eventType := c.Query("type")

	events, err := s.repo.GetEvents(id, eventType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, events)
}

func (s *Server) getRunSummary(c *gin.Context) {
	id := c.Param("id")

	summary, err := s.repo.GetRunSummary(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Training run not found"})
		return
	}

	c.JSON(http.StatusOK, summary)
}
