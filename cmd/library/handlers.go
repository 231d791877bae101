package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"media-lending/pkg/apperrors"
	"media-lending/pkg/models"
)

const requestIDHeader = "X-Request-Id"

func newRouter() *gin.Engine {
	server := gin.New()
	server.Use(gin.Recovery(), requestLogger())

	api := server.Group("/api/v1")
	api.POST("/auth/register", register)
	api.POST("/auth/login", login)

	api.GET("/items", searchItems)
	api.POST("/items", createItem)
	api.GET("/items/:itemId", getItem)
	api.PUT("/items/:itemId", updateItem)
	api.DELETE("/items/:itemId", deleteItem)
	api.GET("/items/:itemId/reservations", getItemQueue)
	api.GET("/items/:itemId/reservations/count", getItemQueueCount)

	api.POST("/loans", borrowItem)
	api.POST("/loans/:loanId/return", returnItem)

	api.POST("/reservations", createReservation)
	api.GET("/reservations/:reservationId", getReservation)
	api.POST("/reservations/:reservationId/cancel", cancelReservation)

	api.GET("/users/:userId/loans", getUserLoans)
	api.GET("/users/:userId/reservations", getUserReservations)
	api.GET("/users/:userId/fines", getUserFines)
	api.DELETE("/users/:userId", deleteUser)
	api.POST("/fines/:fineId/pay", payFine)

	server.GET("/manage/health", healthCheck)
	return server
}

// requestLogger tags every request with an id and logs its outcome.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("requestId", id)
		c.Header(requestIDHeader, id)

		began := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(began)))
	}
}

func writeError(c *gin.Context, err error) {
	var (
		verr *apperrors.ValidationError
		berr *apperrors.BusinessError
		aerr *apperrors.AuthenticationError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": verr.Field})
	case errors.As(err, &aerr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.As(err, &berr) && berr.NotFound():
		c.JSON(http.StatusNotFound, gin.H{"error": berr.Message, "code": berr.Code})
	case errors.As(err, &berr):
		c.JSON(http.StatusConflict, gin.H{"error": berr.Message, "code": berr.Code})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func register(c *gin.Context) {
	var request struct {
		Username string      `json:"username"`
		Password string      `json:"password"`
		Email    string      `json:"email"`
		Role     models.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	user, err := auth.Register(c.Request.Context(), &models.User{
		Username: request.Username,
		Password: request.Password,
		Email:    request.Email,
		Role:     request.Role,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func login(c *gin.Context) {
	var request struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	user, err := auth.Login(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// searchItems serves one filter per request: q, isbn, type, title or author.
func searchItems(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		items []models.MediaItem
		err   error
	)
	switch {
	case c.Query("isbn") != "":
		var item *models.MediaItem
		item, err = library.FindByISBN(ctx, c.Query("isbn"))
		items = []models.MediaItem{}
		if item != nil {
			items = append(items, *item)
		}
	case c.Query("type") != "":
		items, err = library.FindByType(ctx, c.Query("type"))
	case c.Query("title") != "":
		items, err = library.FindByTitleContaining(ctx, c.Query("title"))
	case c.Query("author") != "":
		items, err = library.FindByAuthorContaining(ctx, c.Query("author"))
	default:
		items, err = library.SearchMediaItems(ctx, c.Query("q"))
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totalElements": len(items), "items": items})
}

func createItem(c *gin.Context) {
	var item models.MediaItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	item.ID = 0
	created, err := library.AddMediaItem(c.Request.Context(), &item)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func getItem(c *gin.Context) {
	id, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	item, err := library.GetMediaItem(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Media item not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func updateItem(c *gin.Context) {
	id, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	item, err := library.GetMediaItem(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Media item not found"})
		return
	}
	// fields missing from the body keep their stored values
	if err := c.ShouldBindJSON(item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	item.ID = id
	updated, err := library.UpdateMediaItem(c.Request.Context(), item)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func deleteItem(c *gin.Context) {
	id, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	deleted, err := library.DeleteMediaItem(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Media item not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func getItemQueue(c *gin.Context) {
	id, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	queue, err := reservations.FindActiveByItemID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, queue)
}

func getItemQueueCount(c *gin.Context) {
	id, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	count, err := reservations.CountActiveByItemID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

type lendRequest struct {
	UserID uint `json:"userId" binding:"required"`
	ItemID uint `json:"itemId" binding:"required"`
}

func borrowItem(c *gin.Context) {
	var request lendRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	loan, err := library.BorrowItem(c.Request.Context(), request.UserID, request.ItemID, clk.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func returnItem(c *gin.Context) {
	id, ok := idParam(c, "loanId")
	if !ok {
		return
	}
	result, err := library.ReturnItem(c.Request.Context(), id, clk.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loan":     result.Loan,
		"fine":     result.Fine,
		"promoted": result.Promoted,
	})
}

func createReservation(c *gin.Context) {
	var request lendRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	res, err := reservations.Reserve(c.Request.Context(), request.UserID, request.ItemID, clk.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func getReservation(c *gin.Context) {
	id, ok := idParam(c, "reservationId")
	if !ok {
		return
	}
	res, err := reservations.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Reservation not found"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func cancelReservation(c *gin.Context) {
	id, ok := idParam(c, "reservationId")
	if !ok {
		return
	}
	res, err := reservations.Cancel(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func getUserLoans(c *gin.Context) {
	id, ok := idParam(c, "userId")
	if !ok {
		return
	}
	loans, err := library.ListLoansForUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if strings.EqualFold(c.Query("status"), string(models.LoanActive)) {
		active := loans[:0]
		for _, l := range loans {
			if l.Status == models.LoanActive {
				active = append(active, l)
			}
		}
		loans = active
	}
	c.JSON(http.StatusOK, loans)
}

func getUserReservations(c *gin.Context) {
	id, ok := idParam(c, "userId")
	if !ok {
		return
	}
	var list []models.Reservation
	var err error
	if strings.EqualFold(c.Query("status"), string(models.ReservationActive)) {
		list, err = reservations.FindActiveByUser(c.Request.Context(), id)
	} else {
		list, err = reservations.FindByUser(c.Request.Context(), id)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func getUserFines(c *gin.Context) {
	id, ok := idParam(c, "userId")
	if !ok {
		return
	}
	fines, total, err := library.OutstandingFines(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": fines, "total": total.StringFixed(2)})
}

func payFine(c *gin.Context) {
	id, ok := idParam(c, "fineId")
	if !ok {
		return
	}
	paid, err := library.PayFine(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, paid)
}

func deleteUser(c *gin.Context) {
	id, ok := idParam(c, "userId")
	if !ok {
		return
	}
	deleted, err := library.DeleteUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func healthCheck(ctx *gin.Context) {
	sqlDB, err := db.DB()
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	if err := sqlDB.PingContext(ctx.Request.Context()); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "UP"})
}
