package controller

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fraudwallet-api/internal/repository"
	"fraudwallet-api/internal/service"
)

type WalletController struct {
	walletService service.WalletService
}

func NewWalletController(walletService service.WalletService) *WalletController {
	return &WalletController{
		walletService: walletService,
	}
}

// @Summary Create a new account
// @Description Create a wallet account with an opening balance and policy limits
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body service.CreateAccountRequest true "Create account request"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts [post]
func (c *WalletController) CreateAccount(ctx *gin.Context) {
	var req service.CreateAccountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	account, err := c.walletService.CreateAccount(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, account)
}

// @Summary Get account balance
// @Description Get the balance and freeze state for an account
// @Tags accounts
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {object} service.BalanceResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/balance [get]
func (c *WalletController) GetBalance(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	balance, err := c.walletService.GetBalance(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, balance)
}

// @Summary Send a transaction
// @Description Submit an outgoing transaction for risk scoring and settlement
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body service.SendTransactionRequest true "Send transaction request"
// @Success 200 {object} engine.SubmitResult
// @Success 202 {object} engine.SubmitResult
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/transactions [post]
func (c *WalletController) SendTransaction(ctx *gin.Context) {
	var req service.SendTransactionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	result, err := c.walletService.SendTransaction(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	// A held transaction is not settled yet; signal that with 202.
	status := http.StatusOK
	if result.Assessment.RequiresConfirmation {
		status = http.StatusAccepted
	}
	ctx.JSON(status, result)
}

type confirmRequest struct {
	AccountID int64 `json:"account_id" binding:"required,gt=0"`
	Accepted  *bool `json:"accepted" binding:"required"`
}

// @Summary Confirm or reject a held transaction
// @Description Resolve a transaction held for user confirmation
// @Tags transactions
// @Accept json
// @Produce json
// @Param txnId path string true "Transaction ID"
// @Param request body confirmRequest true "Confirmation decision"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/transactions/{txnId}/confirm [post]
func (c *WalletController) ConfirmTransaction(ctx *gin.Context) {
	txnID := ctx.Param("txnId")

	var req confirmRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	txn, err := c.walletService.ConfirmTransaction(ctx.Request.Context(), req.AccountID, txnID, *req.Accepted)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, txn)
}

// @Summary Expire a held transaction
// @Description Block a pending transaction whose confirmation window elapsed and freeze the account
// @Tags transactions
// @Produce json
// @Param txnId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/transactions/{txnId}/timeout [post]
func (c *WalletController) TimeoutTransaction(ctx *gin.Context) {
	txn, err := c.walletService.TimeoutTransaction(ctx.Request.Context(), ctx.Param("txnId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, txn)
}

// @Summary Evaluate a hypothetical transaction
// @Description Score a transaction without recording anything
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body service.EvaluateRequest true "Evaluate request"
// @Success 200 {object} risk.Assessment
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/transactions/evaluate [post]
func (c *WalletController) EvaluateTransaction(ctx *gin.Context) {
	var req service.EvaluateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	assessment, err := c.walletService.EvaluateTransaction(ctx.Request.Context(), &req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, assessment)
}

// @Summary Get a transaction
// @Tags transactions
// @Produce json
// @Param accountId path int true "Account ID"
// @Param txnId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/transactions/{txnId} [get]
func (c *WalletController) GetTransaction(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	txn, err := c.walletService.GetTransaction(ctx.Request.Context(), accountID, ctx.Param("txnId"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, txn)
}

// @Summary Get transaction history
// @Description List transactions for an account with optional status, risk and date filters
// @Tags transactions
// @Produce json
// @Param accountId path int true "Account ID"
// @Param status query string false "Status filter"
// @Param risk_level query string false "Risk level filter"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Success 200 {array} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/transactions [get]
func (c *WalletController) GetTransactionHistory(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	var req service.HistoryRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid query parameters",
			Message: err.Error(),
		})
		return
	}

	txns, err := c.walletService.GetTransactionHistory(ctx.Request.Context(), accountID, &req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"transactions": txns, "count": len(txns)})
}

// @Summary Get risk timeline
// @Description Daily anomaly score aggregates over the trailing window
// @Tags risk
// @Produce json
// @Param accountId path int true "Account ID"
// @Param days query int false "Trailing window in days"
// @Success 200 {array} service.DailyRiskPoint
// @Security BearerAuth
// @Router /api/accounts/{accountId}/risk/timeline [get]
func (c *WalletController) GetRiskTimeline(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	days, _ := strconv.Atoi(ctx.DefaultQuery("days", "30"))

	timeline, err := c.walletService.GetRiskTimeline(ctx.Request.Context(), accountID, days)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"timeline": timeline, "count": len(timeline)})
}

// @Summary Get account stats
// @Tags accounts
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {object} service.StatsResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/stats [get]
func (c *WalletController) GetStats(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	stats, err := c.walletService.GetStats(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, stats)
}

// @Summary Get behavioral baseline
// @Tags risk
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {object} models.BehaviorBaseline
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/baseline [get]
func (c *WalletController) GetBaseline(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	bl, err := c.walletService.GetBaseline(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, bl)
}

// @Summary Recompute behavioral baseline
// @Description Rebuild the baseline from the full completed-debit history
// @Tags risk
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {object} models.BehaviorBaseline
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/baseline/recompute [post]
func (c *WalletController) RecomputeBaseline(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	bl, err := c.walletService.RecomputeBaseline(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, bl)
}

// @Summary List alerts
// @Tags alerts
// @Produce json
// @Param accountId path int true "Account ID"
// @Param severity query string false "Severity filter"
// @Param type query string false "Alert type filter"
// @Param unresolved query bool false "Only unresolved alerts"
// @Success 200 {array} models.Alert
// @Security BearerAuth
// @Router /api/accounts/{accountId}/alerts [get]
func (c *WalletController) ListAlerts(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))
	filter := repository.AlertFilter{
		Severity:       ctx.Query("severity"),
		AlertType:      ctx.Query("type"),
		UnresolvedOnly: ctx.Query("unresolved") == "true",
		Limit:          limit,
		Offset:         offset,
	}

	alerts, err := c.walletService.ListAlerts(ctx.Request.Context(), accountID, filter)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

type resolveAlertRequest struct {
	Note string `json:"note"`
}

// @Summary Resolve an alert
// @Tags alerts
// @Accept json
// @Produce json
// @Param accountId path int true "Account ID"
// @Param alertId path string true "Alert ID"
// @Success 200 {object} gin.H
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/alerts/{alertId}/resolve [post]
func (c *WalletController) ResolveAlert(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	var req resolveAlertRequest
	_ = ctx.ShouldBindJSON(&req)

	if err := c.walletService.ResolveAlert(ctx.Request.Context(), accountID, ctx.Param("alertId"), req.Note); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"resolved": true})
}

// @Summary Resolve all alerts
// @Tags alerts
// @Accept json
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {object} gin.H
// @Security BearerAuth
// @Router /api/accounts/{accountId}/alerts/resolve-all [post]
func (c *WalletController) ResolveAllAlerts(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	var req resolveAlertRequest
	_ = ctx.ShouldBindJSON(&req)

	count, err := c.walletService.ResolveAllAlerts(ctx.Request.Context(), accountID, req.Note)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"resolved": count})
}

type freezeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// @Summary Freeze an account
// @Description Manually freeze an account for its configured freeze duration
// @Tags accounts
// @Accept json
// @Produce json
// @Param accountId path int true "Account ID"
// @Param request body freezeRequest true "Freeze reason"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/freeze [post]
func (c *WalletController) FreezeAccount(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	var req freezeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	account, err := c.walletService.FreezeAccount(ctx.Request.Context(), accountID, req.Reason)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, account)
}

// @Summary Unfreeze an account
// @Tags accounts
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/unfreeze [post]
func (c *WalletController) UnfreezeAccount(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	account, err := c.walletService.UnfreezeAccount(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, account)
}

// @Summary Update security settings
// @Description Update policy limits and freeze duration for an account
// @Tags accounts
// @Accept json
// @Produce json
// @Param accountId path int true "Account ID"
// @Param request body service.SecuritySettingsRequest true "Settings to change"
// @Success 200 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/accounts/{accountId}/settings [put]
func (c *WalletController) UpdateSecuritySettings(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	var req service.SecuritySettingsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	account, err := c.walletService.UpdateSecuritySettings(ctx.Request.Context(), accountID, &req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, account)
}

// @Summary List known devices
// @Tags context
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {array} models.KnownDevice
// @Security BearerAuth
// @Router /api/accounts/{accountId}/devices [get]
func (c *WalletController) ListDevices(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	devices, err := c.walletService.ListDevices(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}

// @Summary Remove a known device
// @Tags context
// @Param accountId path int true "Account ID"
// @Param fingerprint path string true "Device fingerprint"
// @Success 204
// @Security BearerAuth
// @Router /api/accounts/{accountId}/devices/{fingerprint} [delete]
func (c *WalletController) RemoveDevice(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	if err := c.walletService.RemoveDevice(ctx.Request.Context(), accountID, ctx.Param("fingerprint")); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// @Summary List known locations
// @Tags context
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {array} models.KnownLocation
// @Security BearerAuth
// @Router /api/accounts/{accountId}/locations [get]
func (c *WalletController) ListLocations(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	locations, err := c.walletService.ListLocations(ctx.Request.Context(), accountID)
	if err != nil {
		respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"locations": locations, "count": len(locations)})
}

// @Summary Remove a known location
// @Tags context
// @Param accountId path int true "Account ID"
// @Param name path string true "Location name"
// @Success 204
// @Security BearerAuth
// @Router /api/accounts/{accountId}/locations/{name} [delete]
func (c *WalletController) RemoveLocation(ctx *gin.Context) {
	accountID, err := c.getAccountIDFromPath(ctx)
	if err != nil {
		return
	}

	if err := c.walletService.RemoveLocation(ctx.Request.Context(), accountID, ctx.Param("name")); err != nil {
		respondError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (c *WalletController) getAccountIDFromPath(ctx *gin.Context) (int64, error) {
	raw := ctx.Param("accountId")
	accountID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || accountID <= 0 {
		err = fmt.Errorf("invalid account id: %q", raw)
		ctx.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid account ID",
			Message: err.Error(),
		})
		return 0, err
	}
	return accountID, nil
}
