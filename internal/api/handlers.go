// Package api is the HTTP surface of the shop: gin handlers, the
// middleware chain, and the glue that raises detection events. Handlers
// stay thin; anything detection-related goes through the dispatcher so
// the serving path never depends on detector outcomes.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/auth"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/config"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/database"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/detect"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/events"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// loginIPXSSPayload is the exact header value the persisted
// header-injection challenge expects on True-Client-IP.
const loginIPXSSPayload = "<iframe src=\"javascript:alert(`xss`)\">"

// crossOriginEditor is the third-party form host the request-forgery
// challenge expects the username change to originate from.
const crossOriginEditor = "htmledit.squarefree.com"

// Handler carries the dependencies shared by all route handlers.
type Handler struct {
	store      *database.Store
	registry   *challenge.Registry
	tracker    *challenge.Tracker
	dispatcher *detect.Dispatcher
	auth       *auth.Service
	timing     *detect.TimingProbe
	log        *logger.Logger
	cfg        *config.Config
}

func NewHandler(
	store *database.Store,
	tracker *challenge.Tracker,
	dispatcher *detect.Dispatcher,
	authSvc *auth.Service,
	timing *detect.TimingProbe,
	log *logger.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		store:      store,
		registry:   tracker.Registry(),
		tracker:    tracker,
		dispatcher: dispatcher,
		auth:       authSvc,
		timing:     timing,
		log:        log.WithComponent("api"),
		cfg:        cfg,
	}
}

// Health is the liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListChallenges returns the catalog with live solved state. Challenges
// disabled in the current environment are flagged, not hidden.
func (h *Handler) ListChallenges(c *gin.Context) {
	env := h.cfg.Challenges.Environment

	type entry struct {
		Key           string `json:"key"`
		Name          string `json:"name"`
		Category      string `json:"category"`
		Difficulty    int    `json:"difficulty"`
		Description   string `json:"description"`
		Hint          string `json:"hint,omitempty"`
		HintURL       string `json:"hintUrl,omitempty"`
		MitigationURL string `json:"mitigationUrl,omitempty"`
		Solved        bool   `json:"solved"`
		SolvedAt      string `json:"solvedAt,omitempty"`
		Disabled      bool   `json:"disabled"`
	}

	challenges := h.registry.List()
	out := make([]entry, 0, len(challenges))
	for _, ch := range challenges {
		e := entry{
			Key:           ch.Key,
			Name:          ch.Name,
			Category:      ch.Category,
			Difficulty:    ch.Difficulty,
			Description:   ch.Description,
			Hint:          ch.Hint,
			HintURL:       ch.HintURL,
			MitigationURL: ch.MitigationURL,
			Solved:        ch.Solved(),
			Disabled:      !ch.Available(env),
		}
		if ts := ch.SolvedAt(); !ts.IsZero() {
			e.SolvedAt = ts.UTC().Format(time.RFC3339)
		}
		out = append(out, e)
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": out})
}

// --- users ---

type registerRequest struct {
	Email          string `json:"email" binding:"required"`
	Password       string `json:"password" binding:"required"`
	PasswordRepeat string `json:"passwordRepeat"`
	Username       string `json:"username"`

	// Role is accepted from the client unvalidated. That mass-assignment
	// hole is the point of the admin-registration challenge.
	Role string `json:"role"`
}

func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := req.Role
	if role == "" {
		role = "customer"
	}

	user := &database.User{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Role:     role,
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": user})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil || user.Password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := h.auth.IssueToken(auth.TokenUser{
		ID:       user.ID,
		Email:    user.Email,
		BasketID: user.ID,
		Deluxe:   user.Deluxe,
	})
	if err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authentication": gin.H{
			"token": token,
			"bid":   user.ID,
			"umail": user.Email,
		},
	})
}

type profileRequest struct {
	Username string `json:"username" binding:"required"`
}

// UpdateProfile changes the caller's display name. The endpoint
// deliberately accepts cross-origin form posts; a username change driven
// from the known third-party HTML editor is the forgery artifact.
func (h *Handler) UpdateProfile(c *gin.Context) {
	identity := Identity(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current, err := h.store.GetUser(c.Request.Context(), identity.UserID)
	if err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}

	if err := h.store.UpdateUsername(c.Request.Context(), identity.UserID, req.Username); err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}

	origin := c.GetHeader("Origin") + c.GetHeader("Referer")
	changed := req.Username != current.Username
	h.tracker.SolveIf(c.Request.Context(), challenge.KeyCSRF, func() bool {
		return changed && strings.Contains(origin, crossOriginEditor)
	})

	c.JSON(http.StatusOK, gin.H{"status": "success", "username": req.Username})
}

// SaveLoginIP stores the caller's IP for the profile page, trusting the
// True-Client-IP header verbatim. Smuggling the iframe payload through
// that header is the persisted header-injection artifact.
func (h *Handler) SaveLoginIP(c *gin.Context) {
	identity := Identity(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	ip := c.GetHeader("True-Client-IP")
	if ip == "" {
		ip = c.ClientIP()
	}

	if err := h.store.UpdateLastLoginIP(c.Request.Context(), identity.UserID, ip); err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save login ip"})
		return
	}

	h.tracker.SolveIf(c.Request.Context(), challenge.KeyHTTPHeaderXSS, func() bool {
		return ip == loginIPXSSPayload
	})

	c.JSON(http.StatusOK, gin.H{"status": "success", "lastLoginIp": ip})
}

// --- products and reviews ---

func (h *Handler) GetProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	product, err := h.store.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": product})
}

// ListProductReviews serves reviews for a product. The optional sleep
// parameter is honoured up to a clamp; the timing probe wraps the whole
// query path, so pushing past the clamp is the side-channel artifact.
func (h *Handler) ListProductReviews(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	var delay time.Duration
	if raw := c.Query("sleep"); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			delay = detect.ClampDelay(time.Duration(ms) * time.Millisecond)
		}
	}

	var reviews []database.Review
	err = h.timing.Measure(c.Request.Context(), func() error {
		if delay > 0 {
			time.Sleep(delay)
		}
		var qErr error
		reviews, qErr = h.store.ListProductReviews(c.Request.Context(), id)
		return qErr
	})
	if err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load reviews"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": reviews})
}

type productUpdateRequest struct {
	Description string `json:"description" binding:"required"`
}

// UpdateProduct is reachable without authorization, which is exactly
// what the catalog-tampering challenge exploits.
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	var req productUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateProductDescription(c.Request.Context(), id, req.Description); err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update product"})
		return
	}

	h.dispatcher.DispatchMutation(&events.MutationView{
		Entity:   events.EntityProduct,
		EntityID: strconv.FormatInt(id, 10),
		Fields:   map[string]interface{}{"description": req.Description},
		Request:  RequestView(c),
	})

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// --- feedback and complaints ---

type feedbackRequest struct {
	Comment string `json:"comment" binding:"required"`
	Rating  *int   `json:"rating" binding:"required"`
	Captcha string `json:"captcha"`

	// UserId is taken from the body, not the session. Forging it is a
	// challenge in itself.
	UserID *int64 `json:"UserId"`
}

func (h *Handler) CreateFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	feedback := &database.Feedback{
		ID:      uuid.NewString(),
		UserID:  req.UserID,
		Comment: req.Comment,
		Rating:  *req.Rating,
	}
	if err := h.store.CreateFeedback(c.Request.Context(), feedback); err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save feedback"})
		return
	}

	fields := map[string]interface{}{
		"comment": feedback.Comment,
		"rating":  feedback.Rating,
	}
	if req.UserID != nil {
		fields["claimedUserId"] = *req.UserID
	}
	h.dispatcher.DispatchMutation(&events.MutationView{
		Entity:   events.EntityFeedback,
		EntityID: feedback.ID,
		Fields:   fields,
		Request:  RequestView(c),
	})

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": feedback})
}

// DeleteFeedback removes a feedback entry. Like the rest of the demo
// surface it performs no ownership check; the purge challenge watches
// the resulting mutation.
func (h *Handler) DeleteFeedback(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteFeedback(c.Request.Context(), id); err != nil {
		h.respondStoreError(c, err)
		return
	}

	h.dispatcher.DispatchMutation(&events.MutationView{
		Entity:   events.EntityFeedback,
		EntityID: id,
		Fields:   map[string]interface{}{"deleted": true},
		Request:  RequestView(c),
	})

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

type complaintRequest struct {
	Message string `json:"message" binding:"required"`
	File    string `json:"file"`
}

func (h *Handler) CreateComplaint(c *gin.Context) {
	var req complaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var userID *int64
	if identity := Identity(c); identity != nil {
		userID = &identity.UserID
	}

	complaint := &database.Complaint{
		ID:      uuid.NewString(),
		UserID:  userID,
		Message: req.Message,
		File:    req.File,
	}
	if err := h.store.CreateComplaint(c.Request.Context(), complaint); err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save complaint"})
		return
	}

	h.dispatcher.DispatchMutation(&events.MutationView{
		Entity:   events.EntityComplaint,
		EntityID: complaint.ID,
		Fields:   map[string]interface{}{"message": complaint.Message},
		Request:  RequestView(c),
	})

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": complaint})
}

// --- baskets ---

// GetBasket serves any basket by id to any authenticated caller. The
// missing ownership check is observed by a post-auth detector; the
// handler itself stays permissive.
func (h *Handler) GetBasket(c *gin.Context) {
	if Identity(c) == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid basket id"})
		return
	}

	basket, err := h.store.GetBasket(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": basket})
}

// --- wallet ---

func (h *Handler) GetWalletBalance(c *gin.Context) {
	identity := Identity(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	balance, err := h.store.GetWalletBalance(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": balance})
}

type walletTopUpRequest struct {
	Balance   float64 `json:"balance" binding:"required"`
	PaymentID int64   `json:"paymentId"`
}

// AddWalletBalance tops up the caller's wallet. The payment id must
// reference a card belonging to the caller; a top-up without one is
// rejected with 402.
func (h *Handler) AddWalletBalance(c *gin.Context) {
	identity := Identity(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req walletTopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Balance <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid top-up amount"})
		return
	}

	if _, err := h.store.GetCard(c.Request.Context(), req.PaymentID, identity.UserID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment method required"})
			return
		}
		h.respondStoreError(c, err)
		return
	}

	balance, err := h.store.AddWalletBalance(c.Request.Context(), identity.UserID, req.Balance)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": balance})
}

// --- deliveries and recycling ---

type deliveryView struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	ETA   int     `json:"eta"`
	Icon  string  `json:"icon"`
}

func deliveryForUser(m *database.DeliveryMethod, deluxe bool) deliveryView {
	price := m.Price
	if deluxe {
		price = m.DeluxePrice
	}
	return deliveryView{ID: m.ID, Name: m.Name, Price: price, ETA: m.ETA, Icon: m.Icon}
}

// ListDeliveryMethods lists shipping options. Deluxe members see the
// discounted deluxe price.
func (h *Handler) ListDeliveryMethods(c *gin.Context) {
	methods, err := h.store.ListDeliveryMethods(c.Request.Context())
	if err != nil {
		c.Error(err) //nolint:errcheck
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load delivery methods"})
		return
	}

	identity := Identity(c)
	deluxe := identity != nil && identity.Deluxe
	views := make([]deliveryView, 0, len(methods))
	for i := range methods {
		views = append(views, deliveryForUser(&methods[i], deluxe))
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": views})
}

func (h *Handler) GetDeliveryMethod(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery method id"})
		return
	}

	method, err := h.store.GetDeliveryMethod(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	identity := Identity(c)
	view := deliveryForUser(method, identity != nil && identity.Deluxe)
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": view})
}

func (h *Handler) GetRecycleItem(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recycle id"})
		return
	}

	item, err := h.store.GetRecycleItem(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": item})
}

// respondStoreError maps a lookup failure to 404 and everything else to
// an error response that trips the graceless-error detector when the
// failure was unexpected.
func (h *Handler) respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Error(err) //nolint:errcheck
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
