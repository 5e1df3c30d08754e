package web

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rollcall/internal/capture"
	"rollcall/internal/derive"
	"rollcall/internal/export"
	"rollcall/internal/ics"
	"rollcall/internal/model"
	"rollcall/internal/ref"
	"rollcall/internal/rollcall"
)

type eventView struct {
	Event  model.EventRecord `json:"event"`
	Status derive.Status     `json:"status"`
	Ref    string            `json:"ref"`
}

func (s *Server) view(ev model.EventRecord) eventView {
	return eventView{
		Event:  ev,
		Status: derive.EventStatus(ev, s.svc.Now().Unix()),
		Ref:    ref.BuildFor(ev),
	}
}

// event resolves the :slug route parameter, writing the error response
// when the lookup fails.
func (s *Server) event(c *gin.Context) (model.EventRecord, bool) {
	ev, err := s.svc.FindEvent(c.Request.Context(), c.Param("slug"), trimmedQuery(c, "host"))
	if err != nil {
		writeError(c, err)
		return model.EventRecord{}, false
	}
	return ev, true
}

func (s *Server) handleListEvents(c *gin.Context) {
	host := trimmedQuery(c, "host")
	if host == "" {
		badRequest(c, "host is required")
		return
	}
	dateRange := trimmedQuery(c, "range")
	if !derive.ValidDateRange(dateRange) {
		badRequest(c, "range must be one of today, tomorrow, this-week, this-month, next-month")
		return
	}

	events, err := s.svc.HostEvents(c.Request.Context(), host)
	if err != nil {
		writeError(c, err)
		return
	}

	filtered := derive.FilterEvents(events, derive.Filters{
		Search:    c.Query("q"),
		Category:  c.Query("category"),
		Location:  c.Query("location"),
		Topics:    c.QueryArray("topic"),
		DateRange: dateRange,
		WeekStart: s.cfg.FirstWeekday(),
	}, s.svc.Now(), s.cfg.Location())

	views := make([]eventView, 0, len(filtered))
	for _, ev := range filtered {
		views = append(views, s.view(ev))
	}
	c.JSON(http.StatusOK, gin.H{"events": views, "count": len(views)})
}

func (s *Server) handleGetEvent(c *gin.Context) {
	ev, ok := s.event(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.view(ev))
}

func (s *Server) handleEventCheckIns(c *gin.Context) {
	ev, ok := s.event(c)
	if !ok {
		return
	}
	checkIns, err := s.svc.EventCheckIns(c.Request.Context(), ev)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"check_ins": checkIns, "count": len(checkIns)})
}

func (s *Server) handleCheckIn(c *gin.Context) {
	var sub rollcall.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, err.Error())
		return
	}
	ev, ok := s.event(c)
	if !ok {
		return
	}

	res, err := s.svc.PrepareCheckIn(c.Request.Context(), ev, sub)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type createEventRequest struct {
	model.EventRecord
	CommunityID string `json:"community_id"`
}

func (s *Server) handleCreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	res, err := s.svc.PrepareEvent(c.Request.Context(), req.EventRecord, req.CommunityID)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Edited {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (s *Server) handleAnalytics(c *gin.Context) {
	expected, err := intQuery(c, "expected", 0)
	if err != nil || expected < 0 {
		badRequest(c, "expected must be a non-negative integer")
		return
	}
	days, err := intQuery(c, "days", 7)
	if err != nil || days < 1 || days > 366 {
		badRequest(c, "days must be between 1 and 366")
		return
	}

	ev, ok := s.event(c)
	if !ok {
		return
	}
	summary, checkIns, err := s.svc.Analytics(c.Request.Context(), ev, expected)
	if err != nil {
		writeError(c, err)
		return
	}

	now := s.svc.Now()
	daily, err := derive.DailyCounts(checkIns, now.AddDate(0, 0, -(days-1)), now, s.cfg.Location())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analytics": summary, "daily": daily})
}

func (s *Server) handleAttendanceCSV(c *gin.Context) {
	format := c.DefaultQuery("format", "full")
	if format != "full" && format != "summary" {
		badRequest(c, "format must be full or summary")
		return
	}
	ev, ok := s.event(c)
	if !ok {
		return
	}
	checkIns, err := s.svc.EventCheckIns(c.Request.Context(), ev)
	if err != nil {
		writeError(c, err)
		return
	}

	var (
		buf  bytes.Buffer
		name string
	)
	if format == "summary" {
		err = export.WriteSummary(&buf, checkIns, s.cfg.Location())
		name = export.SummaryFileName(ev.Slug, s.svc.Now())
	} else {
		err = export.WriteAttendance(&buf, checkIns)
		name = export.FileName(ev.Title)
	}
	if errors.Is(err, export.ErrNoAttendees) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", attachment(name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) handleEventICS(c *gin.Context) {
	ev, ok := s.event(c)
	if !ok {
		return
	}
	body := ics.ExportEvents([]model.EventRecord{ev}, "-//RollCall//EN")
	c.Header("Content-Disposition", attachment(ev.Slug+".ics"))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body))
}

func (s *Server) handlePoster(c *gin.Context) {
	if s.posters == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": capture.ErrDisabled.Error()})
		return
	}
	ev, ok := s.event(c)
	if !ok {
		return
	}
	png, err := s.posters.Poster(c.Request.Context(), ev.Slug)
	if errors.Is(err, capture.ErrDisabled) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) handleAttendeeHistory(c *gin.Context) {
	days, err := intQuery(c, "days", 0)
	if err != nil || days < 0 {
		badRequest(c, "days must be a non-negative integer")
		return
	}

	rows, err := s.svc.AttendeeHistory(c.Request.Context(), c.Param("pubkey"), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": rows, "count": len(rows)})
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	v := trimmedQuery(c, key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// attachment builds a Content-Disposition value for a download named name.
func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
