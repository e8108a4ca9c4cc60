package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/franckalain/fooddeclare/internal/access"
	"github.com/franckalain/fooddeclare/internal/declaration"
	apperrors "github.com/franckalain/fooddeclare/internal/errors"
	"github.com/franckalain/fooddeclare/internal/export"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const maxRequestBodySize = 16 << 20

// ErrorResponse is the body of every failed HTTP request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type verifyRequest struct {
	Code     string `json:"code" binding:"required"`
	DeviceID string `json:"device_id"`
}

type verifyResponse struct {
	access.Result
	DeviceID string `json:"device_id"`
}

func (s *Server) routes(staticDir string) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestLogger(),
		requestSizeLimiter(maxRequestBodySize),
	)

	r.GET("/health", healthCheck)
	r.GET("/ws", func(c *gin.Context) {
		s.handleWebSocket(c.Writer, c.Request)
	})

	api := r.Group("/api")
	{
		api.POST("/access/verify", s.verifyCode)
		api.GET("/countries", listCountries)

		locked := api.Group("", s.requireAccess())
		locked.GET("/items", s.listItems)
		locked.GET("/export.pdf", s.exportPDF)
		locked.GET("/scans", s.recentScans)
	}

	if staticDir != "" {
		fs := http.FileServer(http.Dir(staticDir))
		r.NoRoute(gin.WrapH(fs))
	}
	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "available",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listItems(c *gin.Context) {
	c.JSON(http.StatusOK, s.itemsPayload())
}

func (s *Server) exportPDF(c *gin.Context) {
	var buf bytes.Buffer
	meta := export.Meta{Date: time.Now(), Destination: s.country()}
	if err := s.deps.Exporter.Export(&buf, s.deps.Items.Items(), meta); err != nil {
		respondError(c, http.StatusInternalServerError, "failed to export list", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	c.Data(http.StatusOK, s.deps.Exporter.ContentType(), buf.Bytes())
}

func listCountries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"countries": declaration.SearchCountries(c.Query("q"))})
}

func (s *Server) recentScans(c *gin.Context) {
	if s.deps.Scans == nil {
		c.JSON(http.StatusOK, gin.H{"scans": []any{}})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		respondError(c, http.StatusBadRequest, "invalid limit", apperrors.NewValidationError("limit"))
		return
	}

	scans, err := s.deps.Scans.RecentScans(c.Request.Context(), limit)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to load scans", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

func (s *Server) verifyCode(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = access.NewDeviceID()
	}

	res, err := s.unlock(c.Request.Context(), req.Code, req.DeviceID)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "invalid code", err)
		return
	}
	c.JSON(http.StatusOK, verifyResponse{Result: res, DeviceID: req.DeviceID})
}

// requireAccess lets a request through when the gate is disabled or the
// X-Access-Code and X-Device-ID headers name a granted code
func (s *Server) requireAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Gate == nil {
			c.Next()
			return
		}
		res, err := s.unlock(c.Request.Context(), c.GetHeader("X-Access-Code"), c.GetHeader("X-Device-ID"))
		if err != nil || !res.Valid {
			respondError(c, http.StatusUnauthorized, "access code required",
				apperrors.NewUnauthorizedError(res.Message, err))
			return
		}
		c.Next()
	}
}

// unlock validates code for deviceID, remembering granted pairs so a
// one-time code is only spent once per device
func (s *Server) unlock(ctx context.Context, code, deviceID string) (access.Result, error) {
	if s.deps.Gate == nil {
		return access.Result{Valid: true}, nil
	}
	key := deviceID + "|" + access.Normalize(code)
	if deviceID != "" {
		if _, ok := s.grants.Load(key); ok {
			return access.Result{Valid: true}, nil
		}
	}

	res, err := s.deps.Gate.Validate(ctx, code, deviceID)
	if err == nil && res.Valid && deviceID != "" {
		s.grants.Store(key, struct{}{})
	}
	return res, err
}

func (s *Server) country() string {
	if s.deps.Prefs == nil {
		return declaration.DefaultCountry
	}
	return s.deps.Prefs.Country()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("Request handled")
	}
}

func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	log.Error().Err(err).
		Int("status_code", code).
		Str("path", c.Request.URL.Path).
		Str("method", c.Request.Method).
		Msg(message)

	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: fmt.Sprintf("%s: %v", message, err),
	})
}
