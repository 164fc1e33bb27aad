package httpapi

import (
	"errors"
	"net/http"
	"net/url"

	"reservation-caller/internal/calls"
	"reservation-caller/internal/telephony"
	"reservation-caller/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SignatureChecker validates a provider webhook signature. Nil disables the
// check (local/simulated runs).
type SignatureChecker func(fullURL string, form url.Values, signature string) bool

// WebhookStatus terminates provider lifecycle callbacks. Endpoints are
// public; authenticity comes from the signature check.
func (h Handlers) WebhookStatus(check SignatureChecker, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verifySignature(c, check, baseURL) {
			return
		}
		id, ok := webhookCallID(c)
		if !ok {
			return
		}
		form, err := telephony.ParseStatusForm(c.Request)
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		if err := h.Service.HandleSessionStatus(c.Request.Context(), id, form.CallStatus); err != nil {
			logger.From(c.Request.Context()).Warn("status webhook failed", "call_id", id, "error", err)
		}
		c.Status(http.StatusNoContent)
	}
}

// WebhookVoice is fetched when the callee answers; it returns the TwiML that
// opens (or, on voicemail, closes) the conversation.
func (h Handlers) WebhookVoice(check SignatureChecker, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verifySignature(c, check, baseURL) {
			return
		}
		id, ok := webhookCallID(c)
		if !ok {
			return
		}
		form, err := telephony.ParseStatusForm(c.Request)
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		doc, err := h.Service.HandleAnswered(c.Request.Context(), id, form.IsMachine())
		respondTwiML(c, doc, err)
	}
}

// WebhookGather receives the transcribed business reply.
func (h Handlers) WebhookGather(check SignatureChecker, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !verifySignature(c, check, baseURL) {
			return
		}
		id, ok := webhookCallID(c)
		if !ok {
			return
		}
		form, err := telephony.ParseSpeechForm(c.Request)
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		doc, err := h.Service.HandleSpeech(c.Request.Context(), id, form.SpeechResult)
		respondTwiML(c, doc, err)
	}
}

func verifySignature(c *gin.Context, check SignatureChecker, baseURL string) bool {
	if check == nil {
		return true
	}
	if err := c.Request.ParseForm(); err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return false
	}
	full := baseURL + c.Request.URL.RequestURI()
	if !check(full, c.Request.PostForm, c.GetHeader("X-Twilio-Signature")) {
		c.AbortWithStatus(http.StatusForbidden)
		return false
	}
	return true
}

func webhookCallID(c *gin.Context) (string, bool) {
	id := c.Query("call")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call query param required"})
		return "", false
	}
	return id, true
}

func respondTwiML(c *gin.Context, doc string, err error) {
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(doc))
}
