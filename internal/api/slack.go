package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	slackapi "github.com/slack-go/slack"

	"github.com/youneslaaroussi/dealwhisperer/internal/inbound"
)

// slackWebhook verifies a signed Events API delivery against its raw body,
// answers handshakes and hands everything else to the inbound processor.
// Processing happens after the 200 is sent.
func (h *handlers) slackWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Failed to read request body.", err)
		return
	}

	sv, err := slackapi.NewSecretsVerifier(c.Request.Header, h.SigningSecret)
	if err == nil {
		_, _ = sv.Write(body)
		err = sv.Ensure()
	}
	if err != nil {
		h.Telemetry.Event("unauthorized")
		h.log.WithError(err).Warn("rejected webhook with invalid signature")
		c.String(http.StatusUnauthorized, "Invalid signature")
		return
	}

	if retry := c.GetHeader(inbound.HeaderRetryNum); retry != "" {
		h.log.WithField("retry", retry).Debug("webhook redelivery")
	}

	evt, err := h.Events.Dispatch(h.Background, body)
	if err != nil {
		h.log.WithError(err).Warn("undecodable webhook payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}
	if hs, ok := evt.(inbound.Handshake); ok {
		h.log.Info("responding to url verification challenge")
		c.String(http.StatusOK, hs.Challenge)
		return
	}
	c.Status(http.StatusOK)
}

func (h *handlers) searchUser(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required query parameter: name"})
		return
	}
	users, err := h.Users.SearchUsers(c.Request.Context(), name)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to search Slack users.", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
