package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/auth"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/config"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/detect"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/events"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

const identityKey = "crookedcart.identity"
const requestViewKey = "crookedcart.request_view"

// LoggingMiddleware logs all HTTP requests and wraps each one in a
// trace span so downstream log calls carry trace ids.
func LoggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		ctx, span := log.StartSpan(c.Request.Context(), "http.request")
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		span.SetAttributes(
			attribute.String("http.method", method),
			attribute.String("http.target", path),
			attribute.Int("http.status_code", statusCode),
		)
		span.End()

		log.Infow("HTTP request",
			"method", method,
			"path", path,
			"status", statusCode,
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

// RecoveryMiddleware converts a handler panic into a 500 and records it
// on the context so the error-surfacing detector sees it.
func RecoveryMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				log.LogPanic(c.Request.Context(), recovered, "http.handler",
					"path", c.Request.URL.Path,
				)
				c.Error(fmt.Errorf("panic: %v", recovered)) //nolint:errcheck
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": fmt.Sprintf("unexpected error: %v", recovered),
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware allows browser clients on other origins; this is a
// deliberately permissive demo application.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimitMiddleware implements token bucket rate limiting per IP.
func RateLimitMiddleware(cfg config.RateLimitConfig) gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	// Evict idle limiters so the map does not grow unbounded.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			mu.Lock()
			for ip, cl := range clients {
				if time.Since(cl.lastSeen) > 10*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		cl, exists := clients[ip]
		if !exists {
			cl = &client{
				limiter: rate.NewLimiter(
					rate.Limit(cfg.RequestsPerSecond),
					cfg.BurstSize,
				),
				lastSeen: time.Now(),
			}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// DetectionMiddleware builds the event views and invokes the dispatcher
// at its hook points: pre-route on the raw decoded path, post-auth once
// identity is resolved, post-response after the handler finished. The
// request path must never be affected by detection work.
func DetectionMiddleware(dispatcher *detect.Dispatcher, authSvc *auth.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := buildRequestView(c)
		c.Set(requestViewKey, view)

		dispatcher.DispatchRequest(c.Request.Context(), detect.PreRoute, view)

		if view.BearerToken != "" {
			if identity, err := authSvc.ResolveIdentity(view.BearerToken); err == nil {
				view.Identity = identity
				c.Set(identityKey, identity)
			}
		}
		dispatcher.DispatchRequest(c.Request.Context(), detect.PostAuth, view)

		c.Next()

		dispatcher.DispatchResponse(&events.ResponseView{
			Status:  c.Writer.Status(),
			Errored: len(c.Errors) > 0,
			Request: view,
		})
	}
}

func buildRequestView(c *gin.Context) *events.RequestView {
	// gin's URL.Path is already percent-decoded, which matters for the
	// detection targets with non-ASCII characters.
	view := &events.RequestView{
		Method:   c.Request.Method,
		Path:     c.Request.URL.Path,
		Header:   map[string]string{},
		Query:    map[string]string{},
		Cookies:  map[string]string{},
		ClientIP: c.ClientIP(),
	}

	for _, name := range []string{"Origin", "Referer", "True-Client-IP", "Authorization", "Content-Type"} {
		if v := c.GetHeader(name); v != "" {
			view.Header[name] = v
		}
	}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			view.Query[key] = values[0]
		}
	}
	for _, cookie := range c.Request.Cookies() {
		view.Cookies[cookie.Name] = cookie.Value
	}

	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		view.BearerToken = strings.TrimPrefix(authHeader, "Bearer ")
	} else if token, ok := view.Cookies["token"]; ok {
		view.BearerToken = token
	}

	view.Body = peekJSONBody(c)
	return view
}

// peekJSONBody reads and restores the request body so detectors can
// inspect submitted fields without starving the handler. The peek is
// capped at 1 MiB; a larger body still reaches the handler in full,
// stitched back together from the peeked prefix and the unread
// remainder.
func peekJSONBody(c *gin.Context) map[string]interface{} {
	if c.Request.Body == nil || !strings.Contains(c.GetHeader("Content-Type"), "application/json") {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), c.Request.Body))

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	return body
}

// Identity returns the resolved caller, or nil when anonymous.
func Identity(c *gin.Context) *events.Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(*events.Identity); ok {
			return identity
		}
	}
	return nil
}

// RequestView returns the view built for the current request.
func RequestView(c *gin.Context) *events.RequestView {
	if v, ok := c.Get(requestViewKey); ok {
		if view, ok := v.(*events.RequestView); ok {
			return view
		}
	}
	return nil
}
