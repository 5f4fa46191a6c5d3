package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	startedReply        = "✅ Bot started and ready to trade!"
	alreadyRunningReply = "📊 Bot already active and monitoring signals!"
	runningReply        = "📊 Bot active and monitoring signals!"
	stoppedReply        = "⏸ Bot is stopped. Send /start to begin trading."
)

// telegramUpdate is the subset of a Telegram Update the webhook reads.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// telegramWebhook translates /start and /status into engine actions. Replies
// go out through the notifier; Telegram always receives {"ok": true} so it
// does not redeliver the update.
func (s *Server) telegramWebhook(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.Param("token")), []byte(s.opts.BotToken)) != 1 {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	var update telegramUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		s.log.Warn().Err(err).Msg("malformed telegram update")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if update.Message == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	switch command(update.Message.Text) {
	case "/start":
		if s.engine.Start() {
			s.notifier.Notify(startedReply)
		} else {
			s.notifier.Notify(alreadyRunningReply)
		}
	case "/status":
		if s.engine.IsRunning() {
			s.notifier.Notify(runningReply)
		} else {
			s.notifier.Notify(stoppedReply)
		}
	default:
		s.log.Debug().Int64("chat_id", update.Message.Chat.ID).Str("text", update.Message.Text).Msg("ignored telegram message")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// command normalises "/start@my_bot extra" to "/start".
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(cmd)
}
