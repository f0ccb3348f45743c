package main

import (
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gateway "github.com/nimasrn/donation-ledger/internal/gateways"
	"github.com/rs/zerolog/log"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status      string    `json:"status"`
	AccountID   string    `json:"account_id"`
	Timestamp   time.Time `json:"timestamp"`
	SuccessRate float64   `json:"success_rate"`
	Intents     int64     `json:"intents"`
}

// MockPaymentAPI stands in for the hosted payment API a site token talks to.
// It issues client secrets and declines a configurable share of intents.
type MockPaymentAPI struct {
	mu          sync.Mutex
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	accountID   string
	siteToken   string
	rng         *rand.Rand
	intents     int64
}

func NewMockPaymentAPI(successRate float64, minDelay, maxDelay time.Duration, siteToken string) *MockPaymentAPI {
	return &MockPaymentAPI{
		successRate: successRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		accountID:   "acct_" + strings.ReplaceAll(uuid.New().String()[:16], "-", ""),
		siteToken:   siteToken,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockPaymentAPI) randomDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockPaymentAPI) shouldSucceed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < m.successRate
}

// authorized accepts any bearer token when none is configured.
func (m *MockPaymentAPI) authorized(header string) bool {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return m.siteToken == "" || token == m.siteToken
}

type Handler struct {
	api *MockPaymentAPI
}

func NewHandler(api *MockPaymentAPI) *Handler {
	return &Handler{api: api}
}

// CreatePaymentIntent answers the way the hosted API does: a client secret
// and the connected account on success, an error message otherwise.
func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	if !h.api.authorized(c.GetHeader("Authorization")) {
		c.JSON(http.StatusUnauthorized, gateway.IntentResponse{Error: "Invalid site token."})
		return
	}

	var req gateway.IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gateway.IntentResponse{Error: "Invalid request: " + err.Error()})
		return
	}
	if req.DonationAmount < 1 || req.TipAmount < 0 {
		c.JSON(http.StatusBadRequest, gateway.IntentResponse{Error: "Amounts must be positive."})
		return
	}

	time.Sleep(h.api.randomDelay())

	if !h.api.shouldSucceed() {
		log.Warn().
			Int64("donation_amount", req.DonationAmount).
			Int64("tip_amount", req.TipAmount).
			Msg("payment intent declined")
		c.JSON(http.StatusPaymentRequired, gateway.IntentResponse{Error: "The payment could not be started. Please try another card."})
		return
	}

	h.api.mu.Lock()
	h.api.intents++
	h.api.mu.Unlock()

	intentID := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	log.Info().
		Str("intent_id", intentID).
		Int64("donation_amount", req.DonationAmount).
		Int64("tip_amount", req.TipAmount).
		Msg("payment intent created")

	c.JSON(http.StatusOK, gateway.IntentResponse{
		ClientSecret:       intentID + "_secret_" + uuid.NewString()[:8],
		ConnectedAccountID: h.api.accountID,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	h.api.mu.Lock()
	defer h.api.mu.Unlock()
	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		AccountID:   h.api.accountID,
		Timestamp:   time.Now(),
		SuccessRate: h.api.successRate,
		Intents:     h.api.intents,
	})
}

// UpdateConfig allows changing the success rate at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		SuccessRate *float64 `json:"success_rate"`
	}
	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	h.api.mu.Lock()
	if config.SuccessRate != nil && *config.SuccessRate >= 0 && *config.SuccessRate <= 1.0 {
		h.api.successRate = *config.SuccessRate
		log.Info().Float64("rate", *config.SuccessRate).Msg("updated success rate")
	}
	rate := h.api.successRate
	h.api.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"message": "Configuration updated", "success_rate": rate})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	router.POST(gateway.PathCreatePaymentIntent, handler.CreatePaymentIntent)
	router.PUT("/config", handler.UpdateConfig)
	router.GET("/health", handler.HealthCheck)
	return router
}
