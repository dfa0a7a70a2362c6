package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tekpossible/ems/server/database"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *apiServer) getCategoriesHandler(c *gin.Context) {
	categories, err := s.db.ListCategories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (s *apiServer) createCategoryHandler(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Color       string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'name' is required"})
		return
	}

	id, err := s.db.CreateCategory(c.Request.Context(), database.Category{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
	})
	if errors.Is(err, database.ErrDuplicateName) {
		c.JSON(http.StatusConflict, gin.H{"error": "A category with this name already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create category"})
		return
	}

	s.rules.Invalidate()
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "id": id.Hex()})
}

func (s *apiServer) updateCategoryHandler(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Color       string `json:"color"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'name' is required"})
		return
	}

	err := s.db.UpdateCategory(c.Request.Context(), id, req.Name, req.Description, req.Color)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
	case errors.Is(err, database.ErrDuplicateName):
		c.JSON(http.StatusConflict, gin.H{"error": "A category with this name already exists"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update category"})
	default:
		s.rules.Invalidate()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *apiServer) deleteCategoryHandler(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	err := s.db.DeleteCategory(c.Request.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
	case errors.Is(err, database.ErrDefaultCategory):
		c.JSON(http.StatusConflict, gin.H{"error": "Built-in categories cannot be deleted"})
	case errors.Is(err, database.ErrCategoryInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "Category is still referenced by rules"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete category"})
	default:
		s.rules.Invalidate()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *apiServer) getRulesHandler(c *gin.Context) {
	rules, err := s.db.ListRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch rules"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

type ruleRequest struct {
	CategoryID string `json:"category_id"`
	Type       string `json:"type"`
	Mode       string `json:"mode"`
	Pattern    string `json:"pattern"`
	Priority   int    `json:"priority"`
}

func (r ruleRequest) toRule(c *gin.Context) (database.CategorizationRule, bool) {
	catID, err := primitive.ObjectIDFromHex(r.CategoryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'category_id' is not a valid id"})
		return database.CategorizationRule{}, false
	}
	if !database.ValidRuleType(r.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown rule type"})
		return database.CategorizationRule{}, false
	}
	if !database.ValidMatchMode(r.Mode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown match mode"})
		return database.CategorizationRule{}, false
	}
	if r.Pattern == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'pattern' is required"})
		return database.CategorizationRule{}, false
	}
	return database.CategorizationRule{
		CategoryID: catID,
		Type:       r.Type,
		Mode:       r.Mode,
		Pattern:    r.Pattern,
		Priority:   r.Priority,
	}, true
}

func (s *apiServer) createRuleHandler(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	rule, ok := req.toRule(c)
	if !ok {
		return
	}

	id, err := s.db.CreateRule(c.Request.Context(), rule)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create rule"})
		return
	}

	s.rules.Invalidate()
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "id": id.Hex()})
}

func (s *apiServer) updateRuleHandler(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	rule, ruleOK := req.toRule(c)
	if !ruleOK {
		return
	}

	err := s.db.UpdateRule(c.Request.Context(), id, rule)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule or category not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update rule"})
	default:
		s.rules.Invalidate()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (s *apiServer) deleteRuleHandler(c *gin.Context) {
	id, ok := objectIDParam(c, "id")
	if !ok {
		return
	}

	err := s.db.DeleteRule(c.Request.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
	default:
		s.rules.Invalidate()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return primitive.NilObjectID, false
	}
	return id, true
}
