package handler

import (
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"lot_registry/internal/middleware"
	"lot_registry/internal/model"
	"lot_registry/internal/repository"
	"lot_registry/internal/service"

	"github.com/gin-gonic/gin"
)

// LotHandler handles lot registry requests
type LotHandler struct {
	service  service.LotService
	userRepo repository.UserRepository
}

// NewLotHandler creates a new LotHandler
func NewLotHandler(s service.LotService, userRepo repository.UserRepository) *LotHandler {
	return &LotHandler{service: s, userRepo: userRepo}
}

// Helper to get the authenticated actor from context
func getAuthActor(c *gin.Context) (model.Actor, error) {
	actorVal, exists := c.Get(middleware.AuthActorKey)
	if !exists {
		return model.Actor{}, errors.New("actor not found in context")
	}
	actor, ok := actorVal.(model.Actor)
	if !ok {
		return model.Actor{}, errors.New("invalid actor type in context")
	}
	return actor, nil
}

// respondLotError maps the service error taxonomy onto HTTP status codes
func respondLotError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, service.ErrLotNotFound), errors.Is(err, service.ErrPhotoNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("Error %s: %v", action, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action})
	}
}

// photoFiles pulls the uploaded photo files from the multipart form, if any
func photoFiles(c *gin.Context) []*multipart.FileHeader {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		return nil
	}
	return form.File["photos"]
}

// queryFilters reads the optional exact-match filters shared by the listing
// and export endpoints
func queryFilters(c *gin.Context) model.LotFilters {
	var filters model.LotFilters
	if neighborhood := c.Query("neighborhood"); neighborhood != "" {
		filters.Neighborhood = &neighborhood
	}
	if risk := c.Query("risk"); risk != "" {
		filters.Risk = &risk
	}
	if status := c.Query("status"); status != "" {
		filters.Status = &status
	}
	return filters
}

func (h *LotHandler) CreateLot(c *gin.Context) {
	actor, err := getAuthActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req model.CreateLotRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	lot, summary, err := h.service.CreateLot(c.Request.Context(), actor, req, photoFiles(c))
	if err != nil {
		respondLotError(c, err, "create lot")
		return
	}

	resp := gin.H{"message": "Lot registered successfully", "lot": lot, "photos_added": summary.Added}
	if summary.Warning != "" {
		resp["warning"] = summary.Warning
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *LotHandler) ListLots(c *gin.Context) {
	actor, err := getAuthActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	listing, err := h.service.ListLots(c.Request.Context(), actor, queryFilters(c))
	if err != nil {
		respondLotError(c, err, "retrieve lots")
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *LotHandler) GetLot(c *gin.Context) {
	actor, err := getAuthActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	lotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot ID"})
		return
	}

	detail, err := h.service.GetLot(c.Request.Context(), actor, lotID)
	if err != nil {
		respondLotError(c, err, "retrieve lot")
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *LotHandler) UpdateLot(c *gin.Context) {
	actor, err := getAuthActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	lotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot ID"})
		return
	}

	var req model.UpdateLotRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	lot, summary, err := h.service.UpdateLot(c.Request.Context(), actor, lotID, req, photoFiles(c))
	if err != nil {
		respondLotError(c, err, "update lot")
		return
	}

	resp := gin.H{"message": "Lot updated successfully", "lot": lot}
	if summary.Added > 0 {
		resp["photos_added"] = summary.Added
	}
	if summary.Warning != "" {
		resp["warning"] = summary.Warning
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LotHandler) DeleteLot(c *gin.Context) {
	actor, err := getAuthActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	lotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot ID"})
		return
	}

	if err := h.service.DeleteLot(c.Request.Context(), actor, lotID); err != nil {
		respondLotError(c, err, "delete lot")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Lot deleted successfully"})
}

func (h *LotHandler) ChangeStatus(c *gin.Context) {
	actor, err := getAuthActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	lotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot ID"})
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.service.ChangeStatus(c.Request.Context(), actor, lotID, req.Status)
	if err != nil {
		respondLotError(c, err, "change lot status")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *LotHandler) ExportCSV(c *gin.Context) {
	actor, err := getAuthActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	csvBuffer, err := h.service.ExportCSV(c.Request.Context(), actor, queryFilters(c))
	if err != nil {
		respondLotError(c, err, "export lots to CSV")
		return
	}

	fileName := fmt.Sprintf("vacant_lots_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename="+fileName)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", csvBuffer.Bytes())
}

func (h *LotHandler) GetPhoto(c *gin.Context) {
	actor, err := getAuthActor(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	lotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lot ID"})
		return
	}
	photoID, err := strconv.ParseInt(c.Param("photoId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid photo ID"})
		return
	}

	filePath, fileName, err := h.service.GetPhotoPath(c.Request.Context(), actor, lotID, photoID)
	if err != nil {
		respondLotError(c, err, "retrieve photo")
		return
	}

	// Check if file exists before attempting to serve
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Photo file not found on server"})
		return
	}

	c.FileAttachment(filePath, fileName)
}

// --- Admin Routes ---

func (h *LotHandler) ListUsersAdmin(c *gin.Context) {
	users, err := h.userRepo.List(c.Request.Context())
	if err != nil {
		log.Printf("Error listing users for admin: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// RegisterLotRoutes registers lot registry routes
func (h *LotHandler) RegisterLotRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, adminMW gin.HandlerFunc) {
	lotRoutes := rg.Group("/lots")
	lotRoutes.Use(authMW) // All routes in this group require authentication
	{
		lotRoutes.POST("", h.CreateLot)
		lotRoutes.GET("", h.ListLots)
		lotRoutes.GET("/export/csv", h.ExportCSV) // Same scope and filters as the listing
		lotRoutes.GET("/:id", h.GetLot)           // Service layer enforces admin-or-creator
		lotRoutes.PUT("/:id", h.UpdateLot)
		lotRoutes.DELETE("/:id", h.DeleteLot)
		lotRoutes.POST("/:id/status", h.ChangeStatus)
		lotRoutes.GET("/:id/photos/:photoId", h.GetPhoto)
	}

	// Admin-only audit routes
	adminRoutes := rg.Group("/admin")
	adminRoutes.Use(authMW)
	adminRoutes.Use(adminMW)
	{
		adminRoutes.GET("/users", h.ListUsersAdmin)
	}
}
