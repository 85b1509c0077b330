package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handler "ledger-reconciliation-backend/internal/handlers"
	"ledger-reconciliation-backend/internal/repository"
	"ledger-reconciliation-backend/internal/services/banksync"
	"ledger-reconciliation-backend/internal/services/reconciliation"
	"ledger-reconciliation-backend/internal/services/rules"
)

// RegisterRoutes wires the services over db and mounts the API. The rule
// set is loaded once here and reloaded whenever a rule is created.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, providers map[string]banksync.Provider, syncCfg banksync.Config) error {
	store := repository.NewStore(db)

	ruleEngine := rules.NewEngine(store)
	if err := ruleEngine.Reload(context.Background()); err != nil {
		return err
	}

	reconService := reconciliation.NewReconciliationService(store, ruleEngine)
	syncer := banksync.NewSyncer(store, reconService, providers, syncCfg)
	reconHandler := handler.NewReconciliationHandler(store, reconService, syncer, ruleEngine)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	accounts := api.Group("/accounts")
	accounts.POST("", reconHandler.CreateAccount)
	accounts.GET("/:id", reconHandler.GetAccount)
	accounts.GET("/:id/transactions", reconHandler.ListTransactions)
	accounts.POST("/:id/reconcile", reconHandler.Reconcile)
	accounts.POST("/:id/reconcile/preview", reconHandler.Preview)
	accounts.POST("/:id/import", reconHandler.Import)
	accounts.POST("/:id/import/csv", reconHandler.UploadCSV)
	accounts.POST("/:id/sync", reconHandler.SyncAccount)

	// Transaction-level routes
	api.DELETE("/transactions/:id", reconHandler.DeleteTransaction)

	api.POST("/sync", reconHandler.SyncAll)
	api.GET("/runs/:runId", reconHandler.GetRun)

	ruleRoutes := api.Group("/rules")
	{
		ruleRoutes.GET("", reconHandler.ListRules)
		ruleRoutes.POST("", reconHandler.CreateRule)
	}
	return nil
}
