package api

// server.go — la superficie de control HTTP. Autenticación por header
// session_id; el signup y el login son las únicas rutas públicas junto
// con la métrica agregada de plataforma.

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alejandrodnm/atombot/internal/application/registry"
	"github.com/alejandrodnm/atombot/internal/auth"
	"github.com/alejandrodnm/atombot/internal/domain"
)

const sessionHeader = "session_id"

// Server expone el registry y el servicio de sesiones por HTTP.
type Server struct {
	registry *registry.Registry
	auth     *auth.Service
}

// NewServer construye el server con sus dependencias.
func NewServer(reg *registry.Registry, authSvc *auth.Service) *Server {
	return &Server{registry: reg, auth: authSvc}
}

// Router monta todas las rutas sobre un engine gin limpio.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/signup", s.handleSignup)
	r.POST("/login", s.handleLogin)
	r.GET("/platform/win-rate", s.handlePlatformWinRate)

	users := r.Group("/users", s.requireSession)
	users.POST("/pause", s.handlePause)
	users.POST("/unpause", s.handleUnpause)
	users.GET("/status", s.handleStatus)
	users.GET("/config", s.handleConfig)
	users.GET("/trades", s.handleTrades)
	users.POST("/close-position", s.handleClosePosition)
	users.GET("/pnl", s.handlePnL)
	users.GET("/win-rate", s.handleWinRate)
	users.POST("/update-weights", s.handleUpdateWeights)
	users.POST("/update-indicators", s.handleUpdateIndicators)

	return r
}

// requireSession resuelve el header de sesión a la cuenta y lo deja en
// el contexto de gin.
func (s *Server) requireSession(c *gin.Context) {
	accountID, err := s.auth.Authenticate(c.Request.Context(), c.GetHeader(sessionHeader))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing session"})
		return
	}
	c.Set("account_id", accountID)
	c.Next()
}

func accountID(c *gin.Context) int64 {
	return c.GetInt64("account_id")
}

// credentialsRequest es el body de signup y login.
type credentialsRequest struct {
	Signature string `json:"signature" binding:"required"`
	Nonce     string `json:"nonce" binding:"required"`
	Timestamp int64  `json:"timestamp" binding:"required"` // unix seconds
}

func (r credentialsRequest) credentials() auth.Credentials {
	return auth.Credentials{
		Nonce:     r.Nonce,
		Timestamp: time.Unix(r.Timestamp, 0),
		Signature: r.Signature,
	}
}

func (s *Server) handleSignup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	custodyAddress, err := auth.RecoverAddress(req.credentials(), time.Now())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	tradingAddress, err := auth.DeriveTradingAddress(custodyAddress)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	acct, err := s.registry.Signup(c.Request.Context(), custodyAddress, tradingAddress)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrAlreadyRegistered) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	sessionID, expiresAt, err := s.auth.NewSession(c.Request.Context(), acct.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id":      sessionID,
		"expires_at":      expiresAt.UTC().Format(time.RFC3339),
		"custody_address": acct.CustodyAddress,
		"trading_address": acct.TradingAddress,
		"total_capital":   acct.TotalCapital,
		"indicators":      acct.Indicators,
		"weights":         acct.Weights,
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, sessionID, err := s.auth.Login(c.Request.Context(), req.credentials())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID})
}

func (s *Server) handlePause(c *gin.Context) {
	if err := s.registry.Pause(c.Request.Context(), accountID(c)); err != nil {
		abortRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "trading paused"})
}

func (s *Server) handleUnpause(c *gin.Context) {
	if err := s.registry.Unpause(c.Request.Context(), accountID(c)); err != nil {
		abortRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "trading resumed"})
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.registry.Status(c.Request.Context(), accountID(c))
	if err != nil {
		abortRegistryError(c, err)
		return
	}

	positions := make([]gin.H, 0, len(st.OpenPositions))
	for _, p := range st.OpenPositions {
		positions = append(positions, gin.H{
			"asset":       p.Asset,
			"direction":   p.Direction,
			"entry_price": p.EntryPrice,
			"entry_time":  p.EntryTime.UTC().Format(time.RFC3339),
			"amount":      p.Amount,
			"leverage":    p.Leverage,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"custody_address": st.Account.CustodyAddress,
		"trading_address": st.Account.TradingAddress,
		"paused":          st.Account.Paused,
		"total_capital":   st.Account.TotalCapital,
		"bridged_capital": st.Account.BridgedCapital,
		"active_capital":  st.Account.ActiveCapital,
		"indicators":      st.Account.Indicators,
		"weights":         st.Account.Weights,
		"trends":          st.Account.Trends,
		"open_positions":  positions,
		"trade_history":   tradeViews(st.Trades),
		"last_cycle": gin.H{
			"at":        st.LastCycle.At.UTC().Format(time.RFC3339),
			"evaluated": st.LastCycle.Evaluated,
			"opened":    st.LastCycle.Opened,
			"pruned":    st.LastCycle.Pruned,
			"closed":    st.LastCycle.Closed,
			"skipped":   st.LastCycle.Skipped,
			"warnings":  st.LastCycle.Warnings,
		},
	})
}

// factorDescriptions da contexto humano a cada factor en /users/config.
var factorDescriptions = map[domain.Factor]string{
	domain.FactorICT:        "Liquidity sweeps and fair value gaps",
	domain.FactorElliott:    "Impulse/correction wave structure",
	domain.FactorEMA:        "EMA 20/50 crossover",
	domain.FactorRSI:        "Overbought/oversold momentum",
	domain.FactorWyckoff:    "Accumulation/distribution phases",
	domain.FactorTokenomics: "Staking yield and supply dynamics",
	domain.FactorOnchain:    "On-chain activity and balances",
	domain.FactorEcosystem:  "Validator set and ecosystem health",
	domain.FactorTVL:        "Value locked proxies",
	domain.FactorSocial:     "Social media sentiment",
	domain.FactorWhale:      "Large transfer flow",
	domain.FactorMarket:     "News sentiment",
	domain.FactorFunding:    "Yield-driven funding pressure",
}

func (s *Server) handleConfig(c *gin.Context) {
	st, err := s.registry.Status(c.Request.Context(), accountID(c))
	if err != nil {
		abortRegistryError(c, err)
		return
	}

	grouped := make(map[domain.Category][]gin.H)
	total := 0.0
	for _, f := range st.Account.Indicators {
		w := st.Account.Weights[f]
		total += w
		grouped[f.Category()] = append(grouped[f.Category()], gin.H{
			"factor":      f,
			"weight":      w,
			"description": factorDescriptions[f],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"indicators":   grouped,
		"total_weight": total,
	})
}

func (s *Server) handleTrades(c *gin.Context) {
	st, err := s.registry.Status(c.Request.Context(), accountID(c))
	if err != nil {
		abortRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": tradeViews(st.Trades)})
}

func tradeViews(trades []domain.Trade) []gin.H {
	out := make([]gin.H, 0, len(trades))
	for _, t := range trades {
		out = append(out, gin.H{
			"asset":       t.Asset,
			"direction":   t.Direction,
			"entry_time":  t.EntryTime.UTC().Format(time.RFC3339),
			"exit_time":   t.ExitTime.UTC().Format(time.RFC3339),
			"entry_price": t.EntryPrice,
			"exit_price":  t.ExitPrice,
			"profit":      t.Profit,
		})
	}
	return out
}

func (s *Server) handleClosePosition(c *gin.Context) {
	var req struct {
		Asset string `json:"asset" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.registry.ManualClose(c.Request.Context(), accountID(c), req.Asset); err != nil {
		if errors.Is(err, registry.ErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("position on %s closed", req.Asset)})
}

func (s *Server) handlePnL(c *gin.Context) {
	pnl, err := s.registry.PnL(c.Request.Context(), accountID(c))
	if err != nil {
		abortRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pnl_absolute":   pnl.Absolute,
		"pnl_percentage": pnl.Percentage,
	})
}

func (s *Server) handleWinRate(c *gin.Context) {
	wr, err := s.registry.WinRate(c.Request.Context(), accountID(c))
	if err != nil {
		abortRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wins":           wr.Absolute,
		"win_percentage": wr.Percentage,
	})
}

func (s *Server) handlePlatformWinRate(c *gin.Context) {
	wr, err := s.registry.PlatformWinRate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"correct_predictions": wr.Absolute,
		"win_percentage":      wr.Percentage,
	})
}

func (s *Server) handleUpdateWeights(c *gin.Context) {
	var req struct {
		Weights map[domain.Factor]float64 `json:"weights" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	applied, err := s.registry.OverrideWeights(c.Request.Context(), accountID(c), req.Weights)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"weights": applied})
}

func (s *Server) handleUpdateIndicators(c *gin.Context) {
	var req struct {
		Indicators []domain.Factor `json:"indicators" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.registry.ConfigureIndicators(c.Request.Context(), accountID(c), req.Indicators); err != nil {
		if errors.Is(err, registry.ErrUnknownAccount) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"indicators": req.Indicators})
}

func abortRegistryError(c *gin.Context, err error) {
	if errors.Is(err, registry.ErrUnknownAccount) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
