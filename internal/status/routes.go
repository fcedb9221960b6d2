package status

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/ticketyard/internal/store"
	"github.com/zulandar/ticketyard/internal/ticket"
)

// registerRoutes sets up all status routes on the Gin router.
func registerRoutes(router *gin.Engine, reg Registry, st store.Store, started time.Time) {
	router.GET("/healthz", handleHealth(reg, started))

	api := router.Group("/api")
	api.GET("/sessions", handleSessions(reg))
	api.GET("/forms", handleForms(reg))
	api.GET("/records/:kind", handleRecords(st))
}

func handleHealth(reg Registry, started time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(started).Round(time.Second).String(),
			"sessions": len(reg.Sessions()),
			"forms":    len(reg.Forms()),
		})
	}
}

func handleSessions(reg Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions := reg.Sessions()
		if sessions == nil {
			sessions = []ticket.SessionInfo{}
		}
		c.JSON(http.StatusOK, sessions)
	}
}

// formView is the JSON shape of an intake form.
type formView struct {
	ChannelID     string `json:"channel_id"`
	MessageID     string `json:"message_id"`
	Label         string `json:"label"`
	Style         string `json:"style"`
	ChannelPrefix string `json:"channel_prefix"`
}

func handleForms(reg Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		forms := reg.Forms()
		out := make([]formView, 0, len(forms))
		for _, f := range forms {
			out = append(out, formView{
				ChannelID:     f.ChannelID,
				MessageID:     f.MessageID,
				Label:         f.Label,
				Style:         string(f.Style),
				ChannelPrefix: f.ChannelPrefix,
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

// recordView is the JSON shape of a persisted record. Fields that do not
// apply to the record's kind are omitted.
type recordView struct {
	MessageID             string `json:"message_id"`
	ChannelID             string `json:"channel_id"`
	TicketChannelID       string `json:"ticket_channel_id,omitempty"`
	NotificationID        string `json:"notification_id,omitempty"`
	NotificationChannelID string `json:"notification_channel_id,omitempty"`
	Label                 string `json:"label,omitempty"`
	Style                 string `json:"style,omitempty"`
	ChannelPrefix         string `json:"channel_prefix,omitempty"`
}

func handleRecords(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, err := store.ParseKind(c.Param("kind"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		recs, err := st.LoadAll(c.Request.Context(), kind)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]recordView, 0, len(recs))
		for _, r := range recs {
			out = append(out, recordView{
				MessageID:             r.MessageID,
				ChannelID:             r.ChannelID,
				TicketChannelID:       r.TicketChannelID,
				NotificationID:        r.NotificationID,
				NotificationChannelID: r.NotificationChannelID,
				Label:                 r.Label,
				Style:                 r.Style,
				ChannelPrefix:         r.ChannelPrefix,
			})
		}
		c.JSON(http.StatusOK, gin.H{"kind": kind, "count": len(out), "records": out})
	}
}
