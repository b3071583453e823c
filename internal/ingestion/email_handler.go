package ingestion

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"adecis_backend/platform/logger"
)

// EmailHandler terminates the inbound email webhook. There is no signature
// scheme; the trust boundary is the lookup of the destination address
// against the tenant's configured inbound address. Every outcome is 200.
type EmailHandler struct {
	orchestrator *Orchestrator
	log          *logger.Logger
}

// NewEmailHandler creates the inbound email handler.
func NewEmailHandler(orchestrator *Orchestrator, log *logger.Logger) *EmailHandler {
	return &EmailHandler{orchestrator: orchestrator, log: log}
}

var (
	senderNameRe = regexp.MustCompile(`^(.+?)\s*<`)
	addressRe    = regexp.MustCompile(`<(.+?)>`)
)

// Inbound handles POST /webhooks/email/inbound (multipart form from the
// email provider).
func (h *EmailHandler) Inbound(c *gin.Context) {
	spamScore, _ := strconv.ParseFloat(c.PostForm("spam_score"), 64)

	email := parseInboundEmail(
		c.PostForm("to"),
		c.PostForm("from"),
		c.PostForm("subject"),
		c.PostForm("text"),
		spamScore,
	)

	h.orchestrator.ProcessEmail(c.Request.Context(), email)
	c.String(http.StatusOK, "OK")
}

// parseInboundEmail normalizes provider form fields: the sender name is
// pulled from a "Name <email>" from-header, the destination address is
// unwrapped from angle brackets and lowercased.
func parseInboundEmail(to, from, subject, text string, spamScore float64) InboundEmail {
	senderName := from
	if m := senderNameRe.FindStringSubmatch(from); m != nil {
		senderName = strings.ReplaceAll(strings.TrimSpace(m[1]), `"`, "")
	} else if at := strings.Index(from, "@"); at > 0 {
		senderName = from[:at]
	}

	toAddress := to
	if m := addressRe.FindStringSubmatch(to); m != nil {
		toAddress = m[1]
	}
	toAddress = strings.ToLower(strings.TrimSpace(toAddress))

	return InboundEmail{
		To:         toAddress,
		From:       from,
		SenderName: senderName,
		Subject:    subject,
		TextBody:   text,
		SpamScore:  spamScore,
	}
}
