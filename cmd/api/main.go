package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
	"attendsync/internal/config"
	"attendsync/internal/httpmiddleware"
	"attendsync/internal/metrics"
	"attendsync/internal/queue"
	"attendsync/internal/roster"
	"attendsync/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendsync:enroll")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	syncMetrics := metrics.NewSync(reg)

	rosterRepo := roster.NewRepository(db.Client)
	rosterCache := roster.NewCache(rosterRepo, redisClient.Client, cfg.RosterCacheTTL)
	ledger := attendance.NewLedgerRepository(db.Client)
	validator := attendance.NewValidator(rosterCache, ledger, cfg.SyncRetention)
	reconciler := attendance.NewReconciler(validator, ledger, syncMetrics, cfg.SyncMaxBatch, cfg.SyncCommitTimeout)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	var limiter httpmiddleware.Limiter
	if gin.Mode() == gin.ReleaseMode {
		limiter = httpmiddleware.NewRedisLimiter(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}
	r.Use(httpmiddleware.RateLimit(limiter))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		fac, err := rosterRepo.FacultyByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		if fac == nil || !fac.Active || !auth.CheckPassword(fac.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		tokens, err := auth.Issue(fac.ID, "faculty", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"faculty":       fac,
		})
	})

	authGroup := r.Group("/v1", auth.FacultyAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Bulk attendance sync. Partial failure is the normal case: the
	// response is 200 whenever per-record processing ran, and the
	// client retries only the failed subset. Only a malformed or
	// out-of-bounds batch is rejected at the transport level.
	authGroup.POST("/attendance/sync", func(c *gin.Context) {
		var req struct {
			Records []attendance.RawRecord `json:"records"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"records\": [...]}: " + err.Error()})
			return
		}

		result, entries, err := reconciler.Sync(c.Request.Context(), req.Records)
		if err != nil {
			if errors.Is(err, attendance.ErrBatchSize) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if entries == nil {
			entries = []attendance.Entry{}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": result.FailedRecords == 0,
			"result":  result,
			"data":    entries,
		})
	})

	authGroup.GET("/attendance/history", func(c *gin.Context) {
		studentID := c.Query("studentId")
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "studentId is required"})
			return
		}
		from, err := parseDateQuery(c.Query("from"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from: " + err.Error()})
			return
		}
		to, err := parseDateQuery(c.Query("to"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to: " + err.Error()})
			return
		}
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}

		entries, err := ledger.History(c.Request.Context(), studentID, from, to, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if entries == nil {
			entries = []attendance.HistoryEntry{}
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries, "limit": limit, "offset": offset})
	})

	authGroup.POST("/students", func(c *gin.Context) {
		var req struct {
			Name      string `json:"name" binding:"required"`
			Email     string `json:"email" binding:"required,email"`
			SectionID string `json:"sectionId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		section, err := rosterRepo.SectionByID(c.Request.Context(), req.SectionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if section == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "section not found"})
			return
		}

		student, err := rosterRepo.CreateStudent(c.Request.Context(), req.Name, req.Email, req.SectionID)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, student)
	})

	authGroup.GET("/students", func(c *gin.Context) {
		students, err := rosterRepo.ListStudents(c.Request.Context(), c.Query("sectionId"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if students == nil {
			students = []roster.Student{}
		}
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	authGroup.GET("/students/:id", func(c *gin.Context) {
		student, err := rosterRepo.StudentByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if student == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		c.JSON(http.StatusOK, student)
	})

	authGroup.PUT("/students/:id", func(c *gin.Context) {
		var req struct {
			Name      string `json:"name" binding:"required"`
			Email     string `json:"email" binding:"required,email"`
			SectionID string `json:"sectionId" binding:"required"`
			Active    *bool  `json:"active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("id")
		student, err := rosterRepo.UpdateStudent(c.Request.Context(), id, req.Name, req.Email, req.SectionID, *req.Active)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if student == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}
		rosterCache.InvalidateStudent(c.Request.Context(), id)
		c.JSON(http.StatusOK, student)
	})

	// Queue the reference photo for enrollment with the face service;
	// the worker reports the outcome onto the student row.
	authGroup.POST("/students/:id/face", func(c *gin.Context) {
		var req struct {
			PhotoURL string `json:"photoUrl" binding:"required,url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("id")
		student, err := rosterRepo.StudentByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if student == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
			return
		}

		msg, err := queue.NewEnrollMessage(queue.EnrollJob{StudentID: id, PhotoURL: req.PhotoURL})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if err := q.Publish(c.Request.Context(), msg); err != nil {
			log.Printf("enroll publish failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "enrollment queue unavailable"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"studentId": id, "status": "queued"})
	})

	authGroup.POST("/sections", func(c *gin.Context) {
		var req struct {
			Name      string `json:"name" binding:"required"`
			FacultyID string `json:"facultyId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		fac, err := rosterRepo.FacultyByID(c.Request.Context(), req.FacultyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if fac == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "faculty not found"})
			return
		}

		section, err := rosterRepo.CreateSection(c.Request.Context(), req.Name, req.FacultyID)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, section)
	})

	authGroup.GET("/sections", func(c *gin.Context) {
		sections, err := rosterRepo.ListSections(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if sections == nil {
			sections = []roster.Section{}
		}
		c.JSON(http.StatusOK, gin.H{"sections": sections})
	})

	authGroup.GET("/sections/:id", func(c *gin.Context) {
		section, err := rosterRepo.SectionByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if section == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "section not found"})
			return
		}
		c.JSON(http.StatusOK, section)
	})

	authGroup.GET("/faculty", func(c *gin.Context) {
		faculty, err := rosterRepo.ListFaculty(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if faculty == nil {
			faculty = []roster.Faculty{}
		}
		c.JSON(http.StatusOK, gin.H{"faculty": faculty})
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// parseDateQuery accepts a calendar date or a full RFC3339 timestamp.
func parseDateQuery(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CORS middleware for browser and React Native requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
