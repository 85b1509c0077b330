package handler

import (
	"errors"
	"net/http"
	"strconv"

	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/models"
	"ledger-reconciliation-backend/internal/repository"
	"ledger-reconciliation-backend/internal/services/banksync"
	"ledger-reconciliation-backend/internal/services/reconciliation"
	"ledger-reconciliation-backend/internal/services/rules"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultListLimit = 100

type ReconciliationHandler struct {
	store  *repository.Store
	recon  *reconciliation.ReconciliationService
	syncer *banksync.Syncer
	rules  *rules.Engine
}

func NewReconciliationHandler(store *repository.Store, recon *reconciliation.ReconciliationService, syncer *banksync.Syncer, engine *rules.Engine) *ReconciliationHandler {
	return &ReconciliationHandler{store: store, recon: recon, syncer: syncer, rules: engine}
}

type reconcileRequest struct {
	Transactions           []reconciliation.GenericTransaction `json:"transactions"`
	PreserveRawPayeeCasing bool                                `json:"preserve_raw_payee_casing"`
	LooseImportedIDs       bool                                `json:"loose_imported_ids"`
}

func (r reconcileRequest) batch() []reconciliation.ExternalTransaction {
	out := make([]reconciliation.ExternalTransaction, len(r.Transactions))
	for i, t := range r.Transactions {
		out[i] = t
	}
	return out
}

func (r reconcileRequest) options() reconciliation.Options {
	return reconciliation.Options{
		PreserveRawPayeeCasing: r.PreserveRawPayeeCasing,
		LooseImportedIDs:       r.LooseImportedIDs,
	}
}

func (h *ReconciliationHandler) CreateAccount(c *gin.Context) {
	var acct models.Account
	if err := c.ShouldBindJSON(&acct); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if acct.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account name required"})
		return
	}
	acct.ID = uuid.Nil

	if err := h.store.CreateAccount(c.Request.Context(), &acct); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": acct})
}

func (h *ReconciliationHandler) GetAccount(c *gin.Context) {
	accountID, ok := parseID(c, "id", "invalid account ID")
	if !ok {
		return
	}
	acct, err := h.store.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": acct})
}

func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	accountID, ok := parseID(c, "id", "invalid account ID")
	if !ok {
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	items, err := h.store.ListByAccount(c.Request.Context(), accountID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Reconcile merges the posted transactions into the account's ledger.
func (h *ReconciliationHandler) Reconcile(c *gin.Context) {
	accountID, req, ok := h.bindBatch(c)
	if !ok {
		return
	}
	res, err := h.recon.Reconcile(c.Request.Context(), accountID, req.batch(), req.options())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReconciliationHandler) Preview(c *gin.Context) {
	accountID, req, ok := h.bindBatch(c)
	if !ok {
		return
	}
	entries, err := h.recon.Preview(c.Request.Context(), accountID, req.batch(), req.options())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

// Import inserts the posted transactions without matching.
func (h *ReconciliationHandler) Import(c *gin.Context) {
	accountID, req, ok := h.bindBatch(c)
	if !ok {
		return
	}
	res, err := h.recon.AddTransactions(c.Request.Context(), accountID, req.batch())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReconciliationHandler) bindBatch(c *gin.Context) (uuid.UUID, reconcileRequest, bool) {
	var req reconcileRequest
	accountID, ok := parseID(c, "id", "invalid account ID")
	if !ok {
		return accountID, req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return accountID, req, false
	}
	if _, err := h.store.GetAccount(c.Request.Context(), accountID); err != nil {
		writeError(c, err)
		return accountID, req, false
	}
	return accountID, req, true
}

// DeleteTransaction tombstones a ledger row. Tombstoned rows never match.
func (h *ReconciliationHandler) DeleteTransaction(c *gin.Context) {
	id, ok := parseID(c, "id", "invalid transaction ID")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.GetTransaction(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	if err := h.store.MarkDeleted(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction deleted"})
}

func (h *ReconciliationHandler) SyncAccount(c *gin.Context) {
	accountID, ok := parseID(c, "id", "invalid account ID")
	if !ok {
		return
	}
	res, err := h.syncer.SyncAccount(c.Request.Context(), accountID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ReconciliationHandler) SyncAll(c *gin.Context) {
	summary, err := h.syncer.SyncAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ReconciliationHandler) GetRun(c *gin.Context) {
	runID, ok := parseID(c, "runId", "invalid run ID")
	if !ok {
		return
	}
	run, err := h.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func (h *ReconciliationHandler) ListRules(c *gin.Context) {
	items, err := h.store.ListRules(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// CreateRule stores a rule and reloads the engine so the next reconcile
// sees it.
func (h *ReconciliationHandler) CreateRule(c *gin.Context) {
	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := rules.Validate(rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID = uuid.Nil

	ctx := c.Request.Context()
	for _, a := range rule.Actions {
		if a.Field != "payee" {
			continue
		}
		_, err := h.store.GetPayee(ctx, uuid.MustParse(a.Value))
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payee not found"})
			return
		}
		if err != nil {
			writeError(c, err)
			return
		}
	}
	if err := h.store.CreateRule(ctx, &rule); err != nil {
		writeError(c, err)
		return
	}
	if err := h.rules.Reload(ctx); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rule": rule})
}

func parseID(c *gin.Context, param, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	var (
		verr *reconciliation.ValidationError
		serr *banksync.SyncError
		ierr *banksync.InternalError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Err.Error(), "index": verr.Index})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, banksync.ErrNotLinked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &serr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    serr.Error(),
			"category": serr.Category,
			"code":     serr.Code,
		})
	case errors.As(err, &ierr):
		log := logger.WithFields(*logger.FromContext(c.Request.Context()), ierr.Details)
		log.Error().Err(ierr.Err).Str("op", ierr.Op).Msg("internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	default:
		logger.FromContext(c.Request.Context()).Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
