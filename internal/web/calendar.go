package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appLog "rollcall/internal/log"
)

// calendarMaxAge bounds how stale the listing may get when the scheduled
// refresh is not running.
const calendarMaxAge = 15 * time.Minute

func (s *Server) handleCalendar(c *gin.Context) {
	cc, fresh := s.cachedCalendar(calendarMaxAge)
	if !fresh {
		if err := s.RefreshCalendar(c.Request.Context()); err != nil {
			if cc == nil {
				writeError(c, err)
				return
			}
			appLog.Error("calendar refresh failed, serving stale listing", err)
		} else {
			cc, _ = s.cachedCalendar(calendarMaxAge)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":    cc.entries,
		"count":      len(cc.entries),
		"updated_at": cc.updatedAt.UTC().Format(time.RFC3339),
	})
}

type importRequest struct {
	Owner string `json:"owner" binding:"required"`
}

func (s *Server) handleImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	src, err := s.svc.FindCalendarRecord(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := s.svc.Import(ctx, src, req.Owner)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.AlreadyImported {
		c.JSON(http.StatusOK, gin.H{"status": "already_imported"})
		return
	}

	status := "template"
	if res.Published {
		status = "published"
	}
	c.JSON(http.StatusCreated, gin.H{
		"status":    status,
		"event":     res.Event,
		"template":  res.Template,
		"published": res.Published,
	})
}
