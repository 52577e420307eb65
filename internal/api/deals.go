package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

// notifyStale starts a notification run in the background and answers
// immediately.
func (h *handlers) notifyStale(c *gin.Context) {
	h.log.Info("received request to notify stale deals")
	h.bg.Add(1)
	go h.runNotifier()
	c.JSON(http.StatusAccepted, gin.H{"message": "Stale deal notification process initiated."})
}

func (h *handlers) runNotifier() {
	defer h.bg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			h.log.WithField("panic", rec).Error("background notification run panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(h.Background, h.RunTimeout)
	defer cancel()
	sum, err := h.Notifier.Run(ctx)
	if err != nil {
		h.log.WithError(err).Error("background notification run failed")
		return
	}
	h.log.WithFields(logrus.Fields{
		"deals":      sum.Deals,
		"sent":       sum.Sent,
		"failed":     sum.Failed,
		"from_cache": sum.FromCache,
	}).Info("background notification run finished")
}

func (h *handlers) listStakeholders(c *gin.Context) {
	rows, err := h.Store.ListMappings(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to load stakeholder mappings.", err)
		return
	}
	out := make(map[string]string, len(rows))
	for _, m := range rows {
		out[m.Role] = m.SlackUserID
	}
	c.JSON(http.StatusOK, out)
}

type mappingInput struct {
	Role        string  `json:"role" binding:"required"`
	SlackUserID string  `json:"slack_user_id" binding:"required"`
	FullName    *string `json:"full_name"`
}

type assignRequest struct {
	Mappings []mappingInput `json:"mappings" binding:"required,dive"`
}

func (h *handlers) assignStakeholders(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rows := make([]models.StakeholderMapping, len(req.Mappings))
	for i, m := range req.Mappings {
		rows[i] = models.StakeholderMapping{Role: m.Role, SlackUserID: m.SlackUserID, FullName: m.FullName}
	}
	if err := h.Store.UpsertMappings(c.Request.Context(), rows); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to update stakeholder mappings.", err)
		return
	}
	h.log.WithField("count", len(rows)).Info("stakeholder mappings updated")
	c.JSON(http.StatusOK, gin.H{"message": "Stakeholder mappings updated successfully."})
}

func (h *handlers) dashboard(c *gin.Context) {
	snap, err := h.Dashboard.Get(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to load dashboard data.", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *handlers) latestStaleDeals(c *gin.Context) {
	deals, err := h.Dashboard.LatestStaleDeals(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to load stale deals.", err)
		return
	}
	c.JSON(http.StatusOK, deals)
}

func (h *handlers) activeThreads(c *gin.Context) {
	threads, err := h.Dashboard.ActiveThreads(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to load active threads.", err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

func (h *handlers) activeThreadsCount(c *gin.Context) {
	n, err := h.Dashboard.ActiveThreadsCount(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to count active threads.", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *handlers) responseRates(c *gin.Context) {
	rates, err := h.Metrics.ResponseRates(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to compute response rates.", err)
		return
	}
	c.JSON(http.StatusOK, rates)
}

func (h *handlers) dealPerformance(c *gin.Context) {
	perf, err := h.Metrics.DealPerformance(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to compute deal performance.", err)
		return
	}
	c.JSON(http.StatusOK, perf)
}
