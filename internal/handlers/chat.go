package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cedra_storefront/internal/logging"
	"cedra_storefront/internal/metrics"
	"cedra_storefront/internal/services"
)

const maxPromptLength = 2000

type Chatter interface {
	Chat(ctx context.Context, prompt string) services.ChatResult
}

type ChatHandler struct {
	chat    Chatter
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

func NewChatHandler(chat Chatter, m *metrics.Metrics, log logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{chat: chat, metrics: m, log: log}
}

// POST /api/chat {prompt}
// Toujours 200 une fois le prompt accepté; le statut dit si la réponse vient du modèle.
func (h *ChatHandler) Chat(c *gin.Context) {
	var input struct {
		Prompt string `json:"prompt" form:"prompt"`
	}
	_ = c.ShouldBind(&input)

	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Aucun prompt fourni"})
		return
	}
	if len(prompt) > maxPromptLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt trop long"})
		return
	}

	res := h.chat.Chat(c.Request.Context(), prompt)
	h.metrics.Chat(string(res.Status))

	body := gin.H{"status": res.Status, "reply": res.Text}
	if res.Status == services.ChatFailed {
		logging.FromContext(c, h.log).WithField("reason", res.Text).Warn("⚠️ Appel IA échoué")
		body["reply"] = "L'assistant est momentanément indisponible."
		body["error"] = res.Text
	}
	c.JSON(http.StatusOK, body)
}
