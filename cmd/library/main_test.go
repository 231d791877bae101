package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"media-lending/pkg/clock"
	"media-lending/pkg/config"
	"media-lending/pkg/database"
	"media-lending/pkg/models"
	"media-lending/pkg/service"
)

var testNow = time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *clock.Manual {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := database.Open(config.Database{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(conn) })

	manual := clock.NewManual(testNow)
	clk = manual
	logger = zap.NewNop()
	wire(conn, service.DefaultPolicy())
	return manual
}

func doJSON(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func seedUser(t *testing.T, name string) uint {
	t.Helper()
	w := doJSON(t, http.MethodPost, "/api/v1/auth/register", gin.H{
		"username": name, "password": "secret", "email": name + "@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return uint(decode(t, w)["userId"].(float64))
}

func seedItem(t *testing.T, title, kind string, copies int) uint {
	t.Helper()
	w := doJSON(t, http.MethodPost, "/api/v1/items", gin.H{
		"title": title, "author": "Someone", "type": kind,
		"totalCopies": copies, "availableCopies": copies, "lateFeesPerDay": "0.50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return uint(decode(t, w)["itemId"].(float64))
}

func itemPath(id uint) string {
	return "/api/v1/items/" + strconv.FormatUint(uint64(id), 10)
}

func TestHealthCheck(t *testing.T) {
	setupTestDB(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/manage/health", nil)

	healthCheck(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "UP", decode(t, w)["status"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	setupTestDB(t)

	req := httptest.NewRequest("GET", "/manage/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))

	w = doJSON(t, http.MethodGet, "/manage/health", nil)
	assert.Len(t, w.Header().Get(requestIDHeader), 36)
}

func TestItemLifecycle(t *testing.T) {
	setupTestDB(t)
	id := seedItem(t, "Dune", "BOOK", 2)

	w := doJSON(t, http.MethodGet, itemPath(id), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Dune", decode(t, w)["title"])

	w = doJSON(t, http.MethodGet, "/api/v1/items?q=dun", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["totalElements"])

	w = doJSON(t, http.MethodGet, "/api/v1/items?q=", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["totalElements"])

	w = doJSON(t, http.MethodPut, itemPath(id), gin.H{
		"title": "Dune Messiah", "type": "BOOK", "totalCopies": 2, "availableCopies": 2, "lateFeesPerDay": "0.50",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, http.MethodDelete, itemPath(id), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, http.MethodGet, itemPath(id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, http.MethodDelete, itemPath(id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateItemValidation(t *testing.T) {
	setupTestDB(t)

	w := doJSON(t, http.MethodPost, "/api/v1/items", gin.H{"title": "", "type": "BOOK"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "title", decode(t, w)["field"])

	w = doJSON(t, http.MethodGet, "/api/v1/items/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBorrowReturnAndFine(t *testing.T) {
	manual := setupTestDB(t)
	userID := seedUser(t, "alice")
	itemID := seedItem(t, "Abbey Road", "CD", 1)

	w := doJSON(t, http.MethodPost, "/api/v1/loans", gin.H{"userId": userID, "itemId": itemID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	loanID := uint(decode(t, w)["loanId"].(float64))

	w = doJSON(t, http.MethodPost, "/api/v1/loans", gin.H{"userId": userID, "itemId": itemID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NoCopiesAvailable", decode(t, w)["code"])

	manual.Advance(9 * 24 * time.Hour)
	w = doJSON(t, http.MethodPost, "/api/v1/loans/"+strconv.FormatUint(uint64(loanID), 10)+"/return", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fine := decode(t, w)["fine"].(map[string]interface{})
	assert.Equal(t, "1", fine["amount"])

	w = doJSON(t, http.MethodGet, "/api/v1/users/"+strconv.FormatUint(uint64(userID), 10)+"/fines", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.00", decode(t, w)["total"])

	w = doJSON(t, http.MethodPost, "/api/v1/loans/"+strconv.FormatUint(uint64(loanID), 10)+"/return", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "LoanAlreadyReturned", decode(t, w)["code"])

	w = doJSON(t, http.MethodPost, "/api/v1/loans", gin.H{"userId": 999, "itemId": itemID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReservationFlow(t *testing.T) {
	setupTestDB(t)
	holder := seedUser(t, "holder")
	waiter := seedUser(t, "waiter")
	itemID := seedItem(t, "Dune", "BOOK", 1)

	w := doJSON(t, http.MethodPost, "/api/v1/loans", gin.H{"userId": holder, "itemId": itemID})
	require.Equal(t, http.StatusCreated, w.Code)
	loanID := uint(decode(t, w)["loanId"].(float64))

	w = doJSON(t, http.MethodPost, "/api/v1/reservations", gin.H{"userId": waiter, "itemId": itemID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resID := uint(decode(t, w)["reservationId"].(float64))

	w = doJSON(t, http.MethodGet, itemPath(itemID)+"/reservations/count", nil)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = doJSON(t, http.MethodPost, "/api/v1/loans/"+strconv.FormatUint(uint64(loanID), 10)+"/return", nil)
	require.Equal(t, http.StatusOK, w.Code)
	promoted := decode(t, w)["promoted"].(map[string]interface{})
	assert.Equal(t, float64(waiter), promoted["userId"])

	w = doJSON(t, http.MethodGet, "/api/v1/reservations/"+strconv.FormatUint(uint64(resID), 10), nil)
	assert.Equal(t, string(models.ReservationFulfilled), decode(t, w)["status"])

	w = doJSON(t, http.MethodPost, "/api/v1/reservations/"+strconv.FormatUint(uint64(resID), 10)+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ReservationNotActive", decode(t, w)["code"])
}

func TestPartialItemUpdateKeepsOmittedFields(t *testing.T) {
	setupTestDB(t)
	id := seedItem(t, "Dune", "BOOK", 2)

	w := doJSON(t, http.MethodPut, itemPath(id), gin.H{"title": "Dune Messiah"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, http.MethodGet, itemPath(id), nil)
	item := decode(t, w)
	assert.Equal(t, "Dune Messiah", item["title"])
	assert.Equal(t, "Someone", item["author"])
	assert.Equal(t, float64(2), item["availableCopies"])
	assert.Equal(t, float64(2), item["totalCopies"])
	fee, err := decimal.NewFromString(item["lateFeesPerDay"].(string))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.50").Equal(fee), fee.String())

	w = doJSON(t, http.MethodPut, itemPath(999), gin.H{"title": "Ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUserReservationsStatusFilter(t *testing.T) {
	setupTestDB(t)
	userID := seedUser(t, "alice")
	first := seedItem(t, "Dune", "BOOK", 1)
	second := seedItem(t, "Emma", "BOOK", 1)

	w := doJSON(t, http.MethodPost, "/api/v1/reservations", gin.H{"userId": userID, "itemId": first})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = doJSON(t, http.MethodPost, "/api/v1/reservations", gin.H{"userId": userID, "itemId": second})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cancelled := uint(decode(t, w)["reservationId"].(float64))

	w = doJSON(t, http.MethodPost, "/api/v1/reservations/"+strconv.FormatUint(uint64(cancelled), 10)+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	path := "/api/v1/users/" + strconv.FormatUint(uint64(userID), 10) + "/reservations"
	var all, active []models.Reservation

	w = doJSON(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	w = doJSON(t, http.MethodGet, path+"?status=active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
	require.Len(t, active, 1)
	assert.Equal(t, first, active[0].ItemID)
	assert.Equal(t, models.ReservationActive, active[0].Status)
}

func TestLoginRejected(t *testing.T) {
	setupTestDB(t)
	seedUser(t, "alice")

	w := doJSON(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, http.MethodPost, "/api/v1/auth/login", gin.H{"username": "alice", "password": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
	_, leaked := decode(t, w)["password"]
	assert.False(t, leaked)
}

func TestWriteErrorHidesDataAccessDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger = zap.NewNop()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	writeError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decode(t, w)["error"])
}
