package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"github.com/dibs-shares/shares-server/pkg/database/query"
	"github.com/dibs-shares/shares-server/pkg/rate"
	"github.com/dibs-shares/shares-server/pkg/shares/common"
	"github.com/dibs-shares/shares-server/pkg/shares/market"
	"github.com/dibs-shares/shares-server/pkg/shares/registry"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100

	sideBuy  = "buy"
	sideSell = "sell"
)

// Server exposes the market registry over HTTP
type Server struct {
	log      *logrus.Entry
	registry *registry.Registry
	limiter  rate.Limiter
	nr       *newrelic.Application
}

func NewServer(registry *registry.Registry, limiter rate.Limiter, nr *newrelic.Application) *Server {
	if limiter == nil {
		limiter = &rate.NoLimiter{}
	}

	return &Server{
		log:      logrus.StandardLogger().WithField("type", "server/web"),
		registry: registry,
		limiter:  limiter,
		nr:       nr,
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), s.newRelicMiddleware(), s.rateLimitMiddleware())

	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	v1.POST("/markets", s.createMarket)
	v1.GET("/markets", s.listMarkets)
	v1.GET("/creators/:creator/market", s.getMarketByCreator)

	m := v1.Group("/markets/:address")
	m.GET("", s.getMarket)
	m.GET("/price", s.getPrice)
	m.GET("/quote", s.getQuote)
	m.POST("/buy", s.buy)
	m.POST("/sell", s.sell)
	m.GET("/holders/:owner", s.getHolder)
	m.POST("/pause", s.pause)
	m.POST("/unpause", s.unpause)
	m.POST("/fees/claim", s.claimFees)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createMarket(c *gin.Context) {
	var req createMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	creator, valid := parseAccount(c, req.Creator, "creator")
	if !valid {
		return
	}

	ctx := c.Request.Context()
	config, err := s.registry.NewConfig(ctx, creator, req.Name, req.Symbol)
	if err != nil {
		s.failWithError(c, err)
		return
	}

	if len(req.Authority) > 0 {
		if config.Authority, valid = parseAccount(c, req.Authority, "authority"); !valid {
			return
		}
	}
	if req.ReserveRatio != nil {
		config.ReserveRatio = *req.ReserveRatio
	}
	if req.MaxSupply != nil {
		config.MaxSupply = *req.MaxSupply
	}
	if req.BuyFeeBps != nil {
		config.BuyFeeBps = *req.BuyFeeBps
	}
	if req.SellFeeBps != nil {
		config.SellFeeBps = *req.SellFeeBps
	}
	if req.CreatorFeeShareBps != nil {
		config.CreatorFeeShareBps = *req.CreatorFeeShareBps
	}

	m, err := s.registry.CreateMarket(ctx, config)
	if err != nil {
		s.failWithError(c, err)
		return
	}

	snapshot := m.Snapshot()
	ok(c, toMarketResponse(&snapshot))
}

func (s *Server) listMarkets(c *gin.Context) {
	limit := uint64(defaultPageLimit)
	if raw := strings.TrimSpace(c.Query("limit")); len(raw) > 0 {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 || parsed > maxPageLimit {
			fail(c, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	var cursor query.Cursor
	if raw := strings.TrimSpace(c.Query("cursor")); len(raw) > 0 {
		var err error
		cursor, err = query.CursorFromBase58(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid cursor")
			return
		}
	}

	summaries, err := s.registry.ListMarkets(c.Request.Context(), cursor, limit)
	if err != nil {
		s.failWithError(c, err)
		return
	}

	res := &listMarketsResponse{
		Markets: make([]*marketResponse, len(summaries)),
	}
	for i, summary := range summaries {
		res.Markets[i] = toSummaryResponse(summary)
	}
	if uint64(len(summaries)) == limit {
		res.NextCursor = summaries[len(summaries)-1].Cursor.ToBase58()
	}
	ok(c, res)
}

func (s *Server) getMarket(c *gin.Context) {
	m, found := s.marketFromPath(c)
	if !found {
		return
	}

	snapshot := m.Snapshot()
	ok(c, toMarketResponse(&snapshot))
}

func (s *Server) getMarketByCreator(c *gin.Context) {
	creator, valid := parseAccount(c, c.Param("creator"), "creator")
	if !valid {
		return
	}

	m, err := s.registry.GetMarketByCreator(c.Request.Context(), creator)
	if err != nil {
		s.failWithError(c, err)
		return
	}

	snapshot := m.Snapshot()
	ok(c, toMarketResponse(&snapshot))
}

func (s *Server) getPrice(c *gin.Context) {
	m, found := s.marketFromPath(c)
	if !found {
		return
	}

	price, err := m.SpotPrice()
	if err != nil {
		s.failWithError(c, err)
		return
	}
	perToken, err := m.SpotPricePerToken()
	if err != nil {
		s.failWithError(c, err)
		return
	}

	ok(c, &priceResponse{
		Market:            m.Address(),
		SpotPrice:         priceToDecimal(price),
		SpotPricePerToken: priceToDecimal(perToken),
	})
}

func (s *Server) getQuote(c *gin.Context) {
	m, found := s.marketFromPath(c)
	if !found {
		return
	}

	amount, err := strconv.ParseUint(c.Query("amount"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid amount")
		return
	}

	var out, fee uint64
	side := strings.ToLower(c.Query("side"))
	switch side {
	case sideBuy:
		out, fee, err = m.QuoteBuy(amount)
	case sideSell:
		out, fee, err = m.QuoteSell(amount)
	default:
		fail(c, http.StatusBadRequest, "side must be buy or sell")
		return
	}
	if err != nil {
		s.failWithError(c, err)
		return
	}

	ok(c, &quoteResponse{
		Market: m.Address(),
		Side:   side,
		Amount: amount,
		Out:    out,
		Fee:    fee,
	})
}

func (s *Server) buy(c *gin.Context) {
	m, found := s.marketFromPath(c)
	if !found {
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	buyer, valid := parseAccount(c, req.Account, "account")
	if !valid {
		return
	}

	res, err := m.Buy(c.Request.Context(), &market.BuyArgs{
		Buyer:        buyer,
		Amount:       req.Amount,
		MinTokensOut: req.MinOut,
	})
	if err != nil {
		s.failWithError(c, err)
		return
	}
	ok(c, toBuyResponse(res))
}

func (s *Server) sell(c *gin.Context) {
	m, found := s.marketFromPath(c)
	if !found {
		return
	}

	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	seller, valid := parseAccount(c, req.Account, "account")
	if !valid {
		return
	}

	res, err := m.Sell(c.Request.Context(), &market.SellArgs{
		Seller:        seller,
		Amount:        req.Amount,
		MinReserveOut: req.MinOut,
	})
	if err != nil {
		s.failWithError(c, err)
		return
	}
	ok(c, toSellResponse(res))
}

func (s *Server) getHolder(c *gin.Context) {
	m, found := s.marketFromPath(c)
	if !found {
		return
	}

	owner, valid := parseAccount(c, c.Param("owner"), "owner")
	if !valid {
		return
	}

	balance, err := m.BalanceOf(c.Request.Context(), owner)
	if err != nil {
		s.failWithError(c, err)
		return
	}

	ok(c, &holderResponse{
		Market:        m.Address(),
		Owner:         owner.String(),
		Balance:       balance,
		BalanceTokens: quarksToTokens(balance),
	})
}

func (s *Server) pause(c *gin.Context) {
	s.setPaused(c, true)
}

func (s *Server) unpause(c *gin.Context) {
	s.setPaused(c, false)
}

func (s *Server) setPaused(c *gin.Context, paused bool) {
	m, caller, valid := s.marketAndCaller(c)
	if !valid {
		return
	}

	var err error
	if paused {
		err = m.Pause(c.Request.Context(), caller)
	} else {
		err = m.Unpause(c.Request.Context(), caller)
	}
	if err != nil {
		s.failWithError(c, err)
		return
	}

	snapshot := m.Snapshot()
	ok(c, toMarketResponse(&snapshot))
}

func (s *Server) claimFees(c *gin.Context) {
	m, caller, valid := s.marketAndCaller(c)
	if !valid {
		return
	}

	claimed, err := m.ClaimFees(c.Request.Context(), caller)
	if err != nil {
		s.failWithError(c, err)
		return
	}

	ok(c, &claimResponse{
		Market:  m.Address(),
		Claimed: claimed,
	})
}

func (s *Server) marketFromPath(c *gin.Context) (*market.Market, bool) {
	address, valid := parseAccount(c, c.Param("address"), "market address")
	if !valid {
		return nil, false
	}

	m, err := s.registry.GetMarketByAddress(c.Request.Context(), address.String())
	if err != nil {
		s.failWithError(c, err)
		return nil, false
	}
	return m, true
}

func (s *Server) marketAndCaller(c *gin.Context) (*market.Market, *common.Account, bool) {
	m, found := s.marketFromPath(c)
	if !found {
		return nil, nil, false
	}

	var req callerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return nil, nil, false
	}

	caller, valid := parseAccount(c, req.Caller, "caller")
	if !valid {
		return nil, nil, false
	}
	return m, caller, true
}

func parseAccount(c *gin.Context, value, name string) (*common.Account, bool) {
	account, err := common.NewAccountFromPublicKeyString(value)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid "+name)
		return nil, false
	}
	return account, true
}
