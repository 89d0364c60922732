package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"plant_monitor/internal/models"
	"plant_monitor/internal/repository"

	"github.com/gin-gonic/gin"
)

const (
	errFromInvalid = "invalid 'from' time; use RFC3339 or YYYY-MM-DD"
	errToInvalid   = "invalid 'to' time; use RFC3339 or YYYY-MM-DD"

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"

	defaultHistoryWindow = 24 * time.Hour
)

// isDateOnly reports whether the query string represents a date without time component.
func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

func parseQueryTime(s string) (time.Time, error) {
	// Try multiple accepted formats, normalizing to UTC.
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf(
		"invalid time format %q, expected one of: "+
			"RFC3339 (e.g. 2025-08-27T15:04:05Z), "+
			"'YYYY-MM-DD HH:MM:SS', "+
			"'YYYY-MM-DD'",
		s,
	)
}

// parseRange reads optional from/to query params. A missing range
// defaults to the last 24 hours; a date-only 'to' is end-of-day
// inclusive.
func parseRange(c *gin.Context) (from, to time.Time, err error) {
	if qs := c.Query("from"); qs != "" {
		from, err = parseQueryTime(qs)
		if err != nil {
			return from, to, fmt.Errorf("%s", errFromInvalid)
		}
	}
	if qs := c.Query("to"); qs != "" {
		to, err = parseQueryTime(qs)
		if err != nil {
			return from, to, fmt.Errorf("%s", errToInvalid)
		}
		if isDateOnly(qs) {
			to = to.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultHistoryWindow)
	}
	if from.After(to) {
		return from, to, fmt.Errorf("'from' must be <= 'to'")
	}
	return from, to, nil
}

func machineKeyFromPath(c *gin.Context) (models.MachineKey, error) {
	plantID, err := strconv.Atoi(c.Param("plant_id"))
	if err != nil {
		return models.MachineKey{}, fmt.Errorf("invalid plant_id")
	}
	machineID, err := strconv.Atoi(c.Param("machine_id"))
	if err != nil {
		return models.MachineKey{}, fmt.Errorf("invalid machine_id")
	}
	return models.MachineKey{PlantID: plantID, MachineID: machineID}, nil
}

// @Summary      List known machines
// @Tags         machines
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, machines"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/machines [get]
// @Security     BearerAuth
func (h *Handler) listMachines(c *gin.Context) {
	machines, err := h.services.Machines(c.Request.Context())
	if err != nil {
		h.log.Errorw("machines_list_failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load machines"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(machines), "machines": machines})
}

// @Summary      Latest snapshot per machine
// @Description  Returns each machine's newest reading within the recency window.
// @Tags         machines
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, readings"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/machines/status [get]
// @Security     BearerAuth
func (h *Handler) latestStatuses(c *gin.Context) {
	readings, err := h.services.LatestStatuses(c.Request.Context())
	if err != nil {
		h.log.Errorw("machines_status_failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load statuses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(readings), "readings": readings})
}

// @Summary      Raw historical readings for one machine
// @Tags         machines
// @Produce      json
// @Param        plant_id    path   int     true   "Plant ID"
// @Param        machine_id  path   int     true   "Machine ID"
// @Param        from        query  string  false  "Start of range"  example(2026-08-01)
// @Param        to          query  string  false  "End of range"    example(2026-08-31)
// @Success      200  {object}  map[string]interface{}  "count, readings"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/machines/{plant_id}/{machine_id}/data [get]
// @Security     BearerAuth
func (h *Handler) historicalData(c *gin.Context) {
	key, err := machineKeyFromPath(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	readings, err := h.services.HistoricalData(c.Request.Context(), key, from, to)
	if err != nil {
		h.log.Errorw("machines_data_failed", "plant_id", key.PlantID, "machine_id", key.MachineID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load readings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(readings), "readings": readings})
}

// @Summary      Downsampled change events for one machine
// @Tags         machines
// @Produce      json
// @Param        plant_id    path   int     true   "Plant ID"
// @Param        machine_id  path   int     true   "Machine ID"
// @Param        parameter   query  string  false  "Parameter name"  Enums(temperature,humidity,power_supply,vibration)
// @Param        from        query  string  false  "Start of range"
// @Param        to          query  string  false  "End of range"
// @Success      200  {object}  map[string]interface{}  "count, points"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/machines/{plant_id}/{machine_id}/filtered [get]
// @Security     BearerAuth
func (h *Handler) filteredData(c *gin.Context) {
	key, err := machineKeyFromPath(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, to, err := parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	param := strings.ToLower(strings.TrimSpace(c.Query("parameter")))
	if param != "" {
		valid := false
		for _, p := range models.Parameters {
			if p == param {
				valid = true
				break
			}
		}
		if !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown parameter"})
			return
		}
	}

	points, err := h.services.FilteredData(c.Request.Context(), key, param, from, to)
	if err != nil {
		h.log.Errorw("machines_filtered_failed", "plant_id", key.PlantID, "machine_id", key.MachineID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load filtered points"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(points), "points": points})
}

// @Summary      Accumulated KPI records
// @Tags         kpis
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, records"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/kpis [get]
// @Security     BearerAuth
func (h *Handler) listKPIs(c *gin.Context) {
	records, err := h.services.KPIs(c.Request.Context())
	if err != nil {
		h.log.Errorw("kpis_list_failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load kpis"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

// @Summary      List notifications
// @Description  Filter by date range, severity, status and machine.
// @Tags         notifications
// @Produce      json
// @Param        from       query  string  false  "Start of range"
// @Param        to         query  string  false  "End of range"
// @Param        severity   query  string  false  "Severity"  Enums(info,warning,error)
// @Param        status     query  string  false  "Status"    Enums(unresolved,resolved)
// @Param        plant_id   query  int     false  "Plant ID"
// @Param        machine_id query  int     false  "Machine ID"
// @Success      200  {object}  map[string]interface{}  "count, notifications"
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/notifications [get]
// @Security     BearerAuth
func (h *Handler) listNotifications(c *gin.Context) {
	var filter repository.NotificationFilter
	var err error

	if qs := c.Query("from"); qs != "" {
		filter.From, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errFromInvalid})
			return
		}
	}
	if qs := c.Query("to"); qs != "" {
		filter.To, err = parseQueryTime(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errToInvalid})
			return
		}
		if isDateOnly(qs) {
			filter.To = filter.To.Add(24*time.Hour - time.Nanosecond).UTC()
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return
	}

	filter.Severity = strings.ToLower(strings.TrimSpace(c.Query("severity")))
	filter.Status = strings.ToLower(strings.TrimSpace(c.Query("status")))
	if qs := c.Query("plant_id"); qs != "" {
		if filter.PlantID, err = strconv.Atoi(qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plant_id"})
			return
		}
	}
	if qs := c.Query("machine_id"); qs != "" {
		if filter.MachineID, err = strconv.Atoi(qs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid machine_id"})
			return
		}
	}

	notifications, err := h.services.Notifications(c.Request.Context(), filter)
	if err != nil {
		h.log.Errorw("notifications_list_failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(notifications), "notifications": notifications})
}

// @Summary      Mark a notification resolved
// @Tags         notifications
// @Produce      json
// @Param        id  path  string  true  "Notification ID"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/notifications/{id}/resolve [put]
// @Security     BearerAuth
func (h *Handler) resolveNotification(c *gin.Context) {
	id := c.Param("id")
	if err := h.services.ResolveNotification(c.Request.Context(), id); err != nil {
		h.log.Infow("notification_resolve_failed", "id", id, "err", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}
