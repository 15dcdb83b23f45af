// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/kilnlabs/kiln/core"
	"github.com/kilnlabs/kiln/pkg/ids"
	"github.com/kilnlabs/kiln/pkg/mining"
	"github.com/kilnlabs/kiln/pkg/spin"
	"github.com/kilnlabs/kiln/pkg/token"
)

func (n *Node) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsCfg))

	router.GET("/events", n.handleEvents)

	api := router.Group("/api/v1")
	{
		api.POST("/mine", n.handleMine)
		api.POST("/claim", n.handleClaim)
		api.POST("/spin", n.handleSpin)
		api.POST("/faucet", n.handleFaucet)

		api.GET("/slots", n.handleSlots)
		api.GET("/slots/:index", n.handleSlot)
		api.GET("/slots/:index/price", n.handleSlotPrice)
		api.GET("/slots/:index/emission", n.handleSlotEmission)
		api.GET("/claimable/:account", n.handleClaimable)
		api.GET("/balances/:account", n.handleBalances)
		api.GET("/spin/state", n.handleSpinState)

		admin := api.Group("/admin")
		{
			admin.POST("/capacity", n.handleSetCapacity)
			admin.POST("/odds", n.handleSetOdds)
			admin.POST("/fees", n.handleSetFeeRecipient)
			admin.POST("/slots/:index/metadata", n.handleSetMetadata)
		}
	}

	return router
}

// statusFor maps engine errors onto HTTP statuses. Precondition
// failures are conflicts so clients know to refresh and retry.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrExpired),
		errors.Is(err, core.ErrEpochMismatch),
		errors.Is(err, core.ErrMaxPriceExceeded):
		return http.StatusConflict
	case errors.Is(err, core.ErrInsufficientFee),
		errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrUnknownSlot),
		errors.Is(err, core.ErrNoClaimableBalance):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

type mineRequest struct {
	SlotIndex       uint64          `json:"slot_index"`
	ExpectedEpochID uint64          `json:"expected_epoch_id"`
	Deadline        int64           `json:"deadline" binding:"required"`
	MaxPrice        decimal.Decimal `json:"max_price"`
	Caller          ids.Address     `json:"caller" binding:"required"`
	Recipient       ids.Address     `json:"recipient" binding:"required"`
	MetadataURI     string          `json:"metadata_uri"`
}

func (n *Node) handleMine(c *gin.Context) {
	var req mineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := n.mining.Mine(mining.MineRequest{
		SlotIndex:       req.SlotIndex,
		ExpectedEpochID: req.ExpectedEpochID,
		Deadline:        time.Unix(req.Deadline, 0),
		MaxPrice:        req.MaxPrice,
		Caller:          req.Caller,
		Recipient:       req.Recipient,
		MetadataURI:     req.MetadataURI,
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (n *Node) handleClaim(c *gin.Context) {
	var req struct {
		Account ids.Address `json:"account" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := n.mining.Claim(req.Account)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": req.Account, "claimed": amount})
}

type spinRequest struct {
	ExpectedEpochID uint64          `json:"expected_epoch_id"`
	Deadline        int64           `json:"deadline" binding:"required"`
	MaxPrice        decimal.Decimal `json:"max_price"`
	Caller          ids.Address     `json:"caller" binding:"required"`
	Recipient       ids.Address     `json:"recipient" binding:"required"`
	MetadataURI     string          `json:"metadata_uri"`
	AttachedFee     decimal.Decimal `json:"attached_fee"`
}

func (n *Node) handleSpin(c *gin.Context) {
	var req spinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := n.spin.Spin(spin.SpinRequest{
		ExpectedEpochID: req.ExpectedEpochID,
		Deadline:        time.Unix(req.Deadline, 0),
		MaxPrice:        req.MaxPrice,
		Caller:          req.Caller,
		Recipient:       req.Recipient,
		MetadataURI:     req.MetadataURI,
		AttachedFee:     req.AttachedFee,
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// handleFaucet mints payment tokens to an account. Development helper;
// minting is gated on the admin being the payment ledger's authority.
func (n *Node) handleFaucet(c *gin.Context) {
	var req struct {
		Account ids.Address     `json:"account" binding:"required"`
		Amount  decimal.Decimal `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := n.payment.Mint(n.admin, req.Account, req.Amount); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account": req.Account,
		"balance": n.payment.BalanceOf(req.Account),
	})
}

func (n *Node) handleSlots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"capacity":      n.mining.Capacity(),
		"emission_rate": n.mining.CurrentRate(),
		"slots":         n.mining.Slots(),
	})
}

func (n *Node) slotIndex(c *gin.Context) (uint64, bool) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot index"})
		return 0, false
	}
	return index, true
}

func (n *Node) handleSlot(c *gin.Context) {
	index, ok := n.slotIndex(c)
	if !ok {
		return
	}
	view, err := n.mining.Slot(index)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (n *Node) handleSlotPrice(c *gin.Context) {
	index, ok := n.slotIndex(c)
	if !ok {
		return
	}
	price, err := n.mining.Price(index)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot_index": index, "price": price})
}

func (n *Node) handleSlotEmission(c *gin.Context) {
	index, ok := n.slotIndex(c)
	if !ok {
		return
	}
	pending, err := n.mining.PendingEmission(index)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot_index": index, "pending_emission": pending})
}

func (n *Node) handleClaimable(c *gin.Context) {
	account, err := ids.AddressFromString(c.Param("account"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":   account,
		"claimable": n.mining.ClaimableOf(account),
	})
}

func (n *Node) handleBalances(c *gin.Context) {
	account, err := ids.AddressFromString(c.Param("account"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":          account,
		n.payment.Symbol(): n.payment.BalanceOf(account),
		n.reward.Symbol():  n.reward.BalanceOf(account),
		"claimable":        n.mining.ClaimableOf(account),
	})
}

func (n *Node) handleSpinState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"price":            n.spin.Price(),
		"epoch_id":         n.spin.EpochID(),
		"pool_balance":     n.spin.PoolBalance(),
		"pending_emission": n.spin.PendingEmission(),
		"odds":             n.spin.Odds(),
		"pending_spins":    n.spin.PendingCount(),
		"randomness_fee":   n.spin.RandomnessFee(),
	})
}

func (n *Node) handleSetCapacity(c *gin.Context) {
	var req struct {
		Caller   ids.Address `json:"caller" binding:"required"`
		Capacity uint64      `json:"capacity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := n.mining.SetCapacity(req.Caller, req.Capacity); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"capacity": n.mining.Capacity()})
}

func (n *Node) handleSetOdds(c *gin.Context) {
	var req struct {
		Caller ids.Address `json:"caller" binding:"required"`
		// No binding:"required": an empty table must reach SetOdds so the
		// caller sees the engine's odds-configuration error
		Odds []int64 `json:"odds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := n.spin.SetOdds(req.Caller, req.Odds); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"odds": n.spin.Odds()})
}

// handleSetFeeRecipient redirects a named fee share on one engine. An
// omitted recipient clears a non-sink share to the zero address, folding
// its cut into the remainder sink.
func (n *Node) handleSetFeeRecipient(c *gin.Context) {
	var req struct {
		Caller    ids.Address `json:"caller" binding:"required"`
		Source    string      `json:"source" binding:"required"`
		Share     string      `json:"share" binding:"required"`
		Recipient ids.Address `json:"recipient"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var err error
	switch req.Source {
	case "mine":
		err = n.mining.SetFeeRecipient(req.Caller, req.Share, req.Recipient)
	case "spin":
		err = n.spin.SetFeeRecipient(req.Caller, req.Share, req.Recipient)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "source must be \"mine\" or \"spin\""})
		return
	}
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"source":    req.Source,
		"share":     req.Share,
		"recipient": req.Recipient,
	})
}

func (n *Node) handleSetMetadata(c *gin.Context) {
	index, ok := n.slotIndex(c)
	if !ok {
		return
	}
	var req struct {
		Caller      ids.Address `json:"caller" binding:"required"`
		MetadataURI string      `json:"metadata_uri"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := n.mining.SetSlotMetadataURI(req.Caller, index, req.MetadataURI); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot_index": index, "metadata_uri": req.MetadataURI})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams engine events over a websocket until the client
// disconnects or falls too far behind.
func (n *Node) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		n.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := n.bus.Subscribe()
	defer cancel()

	n.log.Debug("event subscriber connected", "remote", c.Request.RemoteAddr)

	// Drain reads so close frames are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			n.log.Debug("event subscriber dropped", "error", err)
			return
		}
	}
}
