package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tekpossible/ems/server/database"
	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

func (s *apiServer) getEmployeesHandler(c *gin.Context) {
	employees, err := s.db.ListEmployees(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch employees"})
		return
	}
	c.JSON(http.StatusOK, employees)
}

func (s *apiServer) getActiveEmployeesHandler(c *gin.Context) {
	employees, err := s.db.ListActiveEmployees(c.Request.Context(), s.activeThreshold)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch active employees"})
		return
	}
	c.JSON(http.StatusOK, employees)
}

func (s *apiServer) getEmployeeHandler(c *gin.Context) {
	emp, err := s.db.GetEmployee(c.Request.Context(), c.Param("employee_id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Employee not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch employee"})
		return
	}
	c.JSON(http.StatusOK, emp)
}

// updateEmployeeHandler renames an employee and/or changes its status.
// Renaming a pending_rename employee promotes it to active unless the
// request says otherwise.
func (s *apiServer) updateEmployeeHandler(c *gin.Context) {
	employeeID := c.Param("employee_id")

	var req struct {
		DisplayName string `json:"display_name"`
		Status      string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}
	if req.DisplayName == "" && req.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}
	if req.Status != "" {
		switch req.Status {
		case database.StatusActive, database.StatusInactive, database.StatusDisabled, database.StatusPendingRename:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status value"})
			return
		}
	}

	ctx := c.Request.Context()
	if req.DisplayName != "" && req.Status == "" {
		emp, err := s.db.GetEmployee(ctx, employeeID)
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Employee not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch employee"})
			return
		}
		if emp.Status == database.StatusPendingRename {
			req.Status = database.StatusActive
		}
	}

	if err := s.db.UpdateEmployee(ctx, employeeID, req.DisplayName, req.Status); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Employee not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update employee"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *apiServer) deleteEmployeeHandler(c *gin.Context) {
	err := s.db.DeleteEmployee(c.Request.Context(), c.Param("employee_id"))
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Employee not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete employee"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *apiServer) getRecentActivityHandler(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	if err != nil || limit <= 0 || limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'limit' must be between 1 and 1000"})
		return
	}

	records, err := s.db.ListRecentActivity(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch activity"})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *apiServer) getEmployeeActivityHandler(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	records, err := s.db.ListActivityByEmployee(c.Request.Context(), c.Param("employee_id"), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch activity"})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *apiServer) getEmployeeScreenshotsHandler(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	records, err := s.db.ListScreenshotsByEmployee(c.Request.Context(), c.Param("employee_id"), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch screenshots"})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *apiServer) getPendingRenameCountHandler(c *gin.Context) {
	count, err := s.db.CountPendingRename(c.Request.Context())
	if err != nil {
		zapctx.Error(c.Request.Context(), "Failed to count pending renames", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count pending employees"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending_rename": count})
}

// timeRange parses the from/to query parameters, defaulting to the last
// 24 hours. It writes the error response itself when parsing fails.
func timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	fromStr := c.DefaultQuery("from", now.Add(-24*time.Hour).Format(time.RFC3339))
	toStr := c.DefaultQuery("to", now.Format(time.RFC3339))

	from, err := time.Parse(time.RFC3339, fromStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be RFC 3339"})
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(time.RFC3339, toStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'to' must be RFC 3339"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
