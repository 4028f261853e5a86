package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"khata/internal/docstore/memory"
	"khata/internal/events"
	"khata/internal/handlers"
	"khata/internal/ledger"
	"khata/internal/logger"
	"khata/internal/middleware"
	"khata/internal/validator"
)

// testApp holds the full application stack for integration tests.
type testApp struct {
	Store  *memory.Store
	Ledger ledger.Servicer
	Router *gin.Engine
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupApp creates a full application stack backed by the in-memory store.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	store := memory.New()
	ledgerService := ledger.NewService(store, events.Noop{})

	transactionHandler := handlers.NewTransactionHandler(ledgerService)
	sourceHandler := handlers.NewSourceHandler(ledgerService)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	sources := v1.Group("/sources")
	sources.GET("", sourceHandler.ListSources)
	sources.GET("/:source", sourceHandler.GetSource)
	sources.GET("/:source/summary", sourceHandler.SummarizeByCategory)
	sources.POST("/:source/recompute", sourceHandler.RecomputeSourceTotals)

	sources.POST("/:source/transactions", transactionHandler.CreateTransaction)
	sources.GET("/:source/transactions", transactionHandler.ListTransactions)
	sources.PUT("/:source/transactions/:id", transactionHandler.UpdateTransaction)
	sources.PATCH("/:source/transactions/:id/status", transactionHandler.UpdateTransactionStatus)
	sources.DELETE("/:source/transactions/:id", transactionHandler.DeleteTransaction)
	sources.POST("/:source/transactions/:id/move", transactionHandler.MoveTransaction)
	sources.POST("/:source/transactions/bulk-status", transactionHandler.BulkUpdateTransactionStatus)

	v1.GET("/transactions", transactionHandler.ListAllTransactions)
	v1.GET("/categories", sourceHandler.ListCategories)
	v1.GET("/owners", sourceHandler.ListOwners)

	return &testApp{Store: store, Ledger: ledgerService, Router: router}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// addTransaction creates a pending transaction over HTTP and returns its ID.
func (app *testApp) addTransaction(t *testing.T, source, body string) string {
	t.Helper()
	rec := app.request("POST", "/api/v1/sources/"+source+"/transactions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	tx := result["transaction"].(map[string]interface{})
	return tx["id"].(string)
}

// assertSourceTotals reads a source over HTTP and checks both aggregates.
func (app *testApp) assertSourceTotals(t *testing.T, source string, outstanding, total float64) {
	t.Helper()
	rec := app.request("GET", "/api/v1/sources/"+source, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get source failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	src := result["source"].(map[string]interface{})
	if src["outstanding"].(float64) != outstanding {
		t.Errorf("source %s: expected outstanding %.0f, got %v", source, outstanding, src["outstanding"])
	}
	if src["total_outstanding"].(float64) != total {
		t.Errorf("source %s: expected total outstanding %.0f, got %v", source, total, src["total_outstanding"])
	}
}

// errorCode extracts the error code from an error response body.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	result := parseJSON(t, rec)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in body: %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}
