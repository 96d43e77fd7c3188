package control

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pushbridge/internal/config"
	"pushbridge/internal/creds"
	"pushbridge/internal/model"
	"pushbridge/internal/stream"
	"pushbridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Remote is the slice of the REST client the control API uses.
type Remote interface {
	CurrentUser(ctx context.Context) (*model.User, error)
	Devices(ctx context.Context) ([]model.Device, error)
	Pushes(ctx context.Context, limit int) ([]model.Push, error)
	CreatePush(ctx context.Context, req *model.PushRequest) (*model.Push, error)
	DeletePush(ctx context.Context, iden string) error
	SendSMS(ctx context.Context, userIden, deviceIden, phoneNumber, message string) error
	RequestThreadList(ctx context.Context, userIden, deviceIden string) error
	RequestMessageList(ctx context.Context, userIden, deviceIden, threadID string) error
}

// RemoteFactory builds a REST client for an API key.
type RemoteFactory func(apiKey string) Remote

// Server is the localhost control API: the surface the dashboard UI talks
// to. It is thin pass-through glue; all connection supervision lives in the
// stream manager.
type Server struct {
	cfg     *config.Config
	store   *creds.Store
	manager *stream.Manager
	cache   *SMSCache
	remote  RemoteFactory
	engine  *gin.Engine
}

// NewServer wires the control routes.
func NewServer(cfg *config.Config, store *creds.Store, manager *stream.Manager, cache *SMSCache, remote RemoteFactory) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		manager: manager,
		cache:   cache,
		remote:  remote,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// Engine exposes the router, used by tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// HTTPServer builds the http.Server with the usual timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Control.Host, s.cfg.Control.Port),
		Handler:           s.engine,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	authGroup := s.engine.Group("/api/auth")
	{
		authGroup.POST("/login", s.handleLogin)
	}

	protected := s.engine.Group("/api")
	protected.Use(AuthMiddleware(s.cfg.JWT.Secret))
	{
		protected.POST("/auth/logout", s.handleLogout)
		protected.GET("/status", s.handleStatus)
		protected.GET("/devices", s.handleDevices)
		protected.GET("/pushes", s.handlePushes)
		protected.POST("/push", s.handleCreatePush)
		protected.DELETE("/push/:iden", s.handleDeletePush)
		protected.POST("/sms/send", s.handleSendSMS)
		protected.POST("/sms/refresh", s.handleRefreshThreads)
		protected.POST("/sms/thread", s.handleRefreshMessages)
		protected.GET("/sms/threads", s.handleThreads)
		protected.GET("/sms/messages", s.handleMessages)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().UTC(),
		"service": "pushbridge",
	})
}

// LoginRequest is the login payload from the dashboard.
type LoginRequest struct {
	APIKey string `json:"api_key"`
}

// handleLogin verifies the API key against the remote account endpoint
// before anything else sees it; the stream is never started for a key that
// fails this check.
func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "API key is required"})
		return
	}

	user, err := s.remote(req.APIKey).CurrentUser(c.Request.Context())
	if err != nil {
		logger.Warn("login rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		return
	}

	if err := s.store.Save(&creds.Credential{APIKey: req.APIKey, UserID: user.Iden}); err != nil {
		logger.Error("failed to save credential", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save credential"})
		return
	}

	token, err := issueToken(s.cfg.JWT.Secret, user.Iden, s.cfg.JWT.TokenExpiry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.store.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStatus(c *gin.Context) {
	state := s.manager.State()
	c.JSON(http.StatusOK, gin.H{
		"connection": state.String(),
		"live":       state == stream.Open,
		"attempts":   s.manager.Attempts(),
	})
}

// credential returns the saved credential or fails the request.
func (s *Server) credential(c *gin.Context) *creds.Credential {
	cred, err := s.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil
	}
	if cred == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not logged in"})
		return nil
	}
	return cred
}

func (s *Server) handleDevices(c *gin.Context) {
	cred := s.credential(c)
	if cred == nil {
		return
	}
	devices, err := s.remote(cred.APIKey).Devices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}

func (s *Server) handlePushes(c *gin.Context) {
	cred := s.credential(c)
	if cred == nil {
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	pushes, err := s.remote(cred.APIKey).Pushes(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pushes": pushes})
}

func (s *Server) handleCreatePush(c *gin.Context) {
	cred := s.credential(c)
	if cred == nil {
		return
	}
	var req model.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type != "note" && req.Type != "link" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Push type must be note or link"})
		return
	}
	push, err := s.remote(cred.APIKey).CreatePush(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, push)
}

func (s *Server) handleDeletePush(c *gin.Context) {
	cred := s.credential(c)
	if cred == nil {
		return
	}
	if err := s.remote(cred.APIKey).DeletePush(c.Request.Context(), c.Param("iden")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// SendSMSRequest asks a phone to send a text.
type SendSMSRequest struct {
	DeviceIden  string `json:"device_iden"`
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

func (s *Server) handleSendSMS(c *gin.Context) {
	cred := s.credential(c)
	if cred == nil {
		return
	}
	var req SendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DeviceIden == "" || req.PhoneNumber == "" || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_iden, phone_number and message are required"})
		return
	}
	err := s.remote(cred.APIKey).SendSMS(c.Request.Context(), cred.UserID, req.DeviceIden, req.PhoneNumber, req.Message)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshRequest identifies the phone (and optionally thread) to re-fetch.
type RefreshRequest struct {
	DeviceIden string `json:"device_iden"`
	ThreadID   string `json:"thread_id"`
}

func (s *Server) handleRefreshThreads(c *gin.Context) {
	cred := s.credential(c)
	if cred == nil {
		return
	}
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceIden == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_iden is required"})
		return
	}
	if err := s.remote(cred.APIKey).RequestThreadList(c.Request.Context(), cred.UserID, req.DeviceIden); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleRefreshMessages(c *gin.Context) {
	cred := s.credential(c)
	if cred == nil {
		return
	}
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DeviceIden == "" || req.ThreadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device_iden and thread_id are required"})
		return
	}
	if err := s.remote(cred.APIKey).RequestMessageList(c.Request.Context(), cred.UserID, req.DeviceIden, req.ThreadID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleThreads(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"threads": s.cache.LatestThreads()})
}

func (s *Server) handleMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": s.cache.LatestMessages()})
}
