package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"facegate/internal/accesslog"
	"facegate/internal/attendance"
	"facegate/internal/auth"
	"facegate/internal/authority"
	"facegate/internal/config"
	"facegate/internal/engine"
	"facegate/internal/enrollment"
	"facegate/internal/facemodel"
	"facegate/internal/httpmiddleware"
	"facegate/internal/queue"
	"facegate/internal/schedule"
	"facegate/internal/snapshot"
	"facegate/internal/store"
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
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		if db == nil {
			return err
		}
		// Connections are pooled lazily; a failed startup ping is a
		// warning, not a fatal.
		logger.Warn("db not reachable", "error", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var events, jobs queue.Queue
	if cfg.QueueBackend == "memory" {
		events = queue.NewInMemory(64)
		jobs = queue.NewInMemory(64)
	} else {
		events = queue.NewRedisQueue(redisClient.Client, queue.KeyDecisions)
		jobs = queue.NewRedisQueue(redisClient.Client, queue.KeyTraining)
	}

	enrollRepo := enrollment.NewRepository(db.Client)
	modelRegistry := facemodel.NewRegistry(db.Client)
	attendanceRepo := attendance.NewRepository(db.Client)
	attemptLog := accesslog.NewLogger(db.Client, logger)

	resolver := schedule.NewResolver(enrollRepo, logger)
	ledger := attendance.NewService(attendanceRepo, attemptLog, logger)
	gate := enrollment.NewVerifier(enrollRepo, modelRegistry)

	var remote engine.Authority
	if cfg.AuthorityURL != "" {
		remote = authority.New(cfg.AuthorityURL, cfg.AuthorityTimeout)
		logger.Info("remote schedule authority configured", "url", cfg.AuthorityURL)
	}

	decider := engine.New(remote, resolver, gate, ledger, attemptLog, logger)

	// Snapshot uploader (nil when not configured)
	var snapClient *snapshot.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		snapClient = snapshot.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info("snapshot storage configured", "cloud", cfg.CloudinaryCloudName)
	} else {
		logger.Info("snapshot storage not configured, attempts stored without images")
	}

	ctx := context.Background()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.DeviceID, "device", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	// The local resolver exposed with the same wire shape the authority
	// client consumes, so one instance can serve as another's remote
	// schedule authority.
	checkAccess := func(c *gin.Context) {
		var req struct {
			UserID string `json:"user_id" binding:"required"`
			Date   string `json:"date"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}

		at := time.Now()
		if req.Date != "" {
			d, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "date must be YYYY-MM-DD"})
				return
			}
			// Date-scoped queries keep the caller's wall-clock time.
			at = time.Date(d.Year(), d.Month(), d.Day(), at.Hour(), at.Minute(), at.Second(), 0, time.Local)
		}

		res, err := resolver.Resolve(c.Request.Context(), req.UserID, at)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "access check failed"})
			return
		}

		matches := make([]gin.H, 0, len(res.Matches))
		for _, m := range res.Matches {
			matches = append(matches, gin.H{
				"class_id":    m.ClassID,
				"class_name":  m.ClassName,
				"course_name": m.CourseName,
				"day":         m.Slot.Day,
				"start_time":  m.Slot.Start,
				"end_time":    m.Slot.End,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"allowed": res.Allowed,
				"matches": matches,
				"reason":  res.Reason,
			},
		})
	}
	r.POST("/v1/attendance/check-access", checkAccess)
	r.POST("/api/attendance/check-access", checkAccess)

	authGroup := r.Group("/v1", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/recognitions", func(c *gin.Context) {
		var req struct {
			IdentityID string  `json:"identity_id" binding:"required"`
			Confidence float64 `json:"confidence"`
			Snapshot   string  `json:"snapshot"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Confidence < 0 || req.Confidence > 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "confidence must be within [0,1]"})
			return
		}

		snapshotURL := ""
		if req.Snapshot != "" && snapClient != nil {
			if result, err := snapClient.UploadBase64(req.Snapshot); err != nil {
				logger.Warn("snapshot upload failed", "identity_id", req.IdentityID, "error", err)
			} else {
				snapshotURL = result.SecureURL
			}
		}

		decision := decider.DecideWithSnapshot(c.Request.Context(), req.IdentityID, req.Confidence, snapshotURL)

		event, _ := json.Marshal(gin.H{
			"identity_id": req.IdentityID,
			"granted":     decision.Granted,
			"reason":      decision.Reason,
			"session_id":  decision.SessionID,
			"confidence":  req.Confidence,
			"at":          time.Now().UTC(),
		})
		if err := events.Publish(ctx, queue.Message{Type: queue.TypeDecision, Body: event}); err != nil {
			logger.Warn("decision event publish failed", "error", err)
		}

		c.JSON(http.StatusOK, gin.H{
			"granted":    decision.Granted,
			"reason":     decision.Reason,
			"session_id": decision.SessionID,
		})
	})

	authGroup.POST("/models/train", func(c *gin.Context) {
		var req struct {
			IdentityID string `json:"identity_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ident, err := enrollRepo.GetIdentity(c.Request.Context(), req.IdentityID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "identity lookup failed"})
			return
		}
		if ident == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
			return
		}

		modelID, err := modelRegistry.BeginTraining(c.Request.Context(), req.IdentityID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "training record failed"})
			return
		}

		job, _ := json.Marshal(gin.H{"model_id": modelID, "identity_id": req.IdentityID})
		if err := jobs.Publish(ctx, queue.Message{Type: queue.TypeTrain, Body: job}); err != nil {
			logger.Error("training job publish failed", "model_id", modelID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "training enqueue failed"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"model_id": modelID, "status": facemodel.StatusTraining})
	})

	authGroup.GET("/attempts", func(c *gin.Context) {
		f := accesslog.Filter{
			IdentityID: c.Query("identity_id"),
			Status:     c.Query("status"),
			Limit:      intQuery(c, "limit", 50),
			Offset:     intQuery(c, "offset", 0),
		}
		attempts, err := attemptLog.List(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"attempts": attempts})
	})

	authGroup.GET("/attendance", func(c *gin.Context) {
		records, err := attendanceRepo.ListRecords(c.Request.Context(),
			c.Query("identity_id"), intQuery(c, "limit", 50), intQuery(c, "offset", 0))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authGroup.GET("/identities", func(c *gin.Context) {
		identities, err := enrollRepo.ListIdentities(c.Request.Context(),
			intQuery(c, "limit", 50), intQuery(c, "offset", 0))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"identities": identities})
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
		logger.Info("starting server", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
	}

	logger.Info("server exited")
	return nil
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// CORS middleware for browser requests
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

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
