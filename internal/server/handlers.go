package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/internal/service/queue"
	"github.com/ifuryst/cadence/internal/service/recurrence"
	"github.com/ifuryst/cadence/pkg/util"
)

type outcomeResponse struct {
	queue.Outcome
	Error string `json:"error,omitempty"`
}

func (s *Server) handleListDefinitions(c *gin.Context) {
	defs, err := s.Services.Definitions.List(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to list definitions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list definitions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"definitions": defs})
}

func (s *Server) handleGetDefinition(c *gin.Context) {
	def, ok := s.loadDefinition(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) handlePutDefinition(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var def models.RecurrenceDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	def.ID = id
	def.Platforms = util.NormalizePlatforms(def.Platforms)
	def.Hashtags = util.NormalizeHashtags(def.Hashtags)

	if err := recurrence.Validate(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// derived columns belong to the engine
	def.NextOccurrence = nil
	def.OccurrencesGenerated = 0
	if existing, err := s.Services.Definitions.Get(ctx, id); err == nil {
		def.OccurrencesGenerated = existing.OccurrencesGenerated
		def.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, recurrence.ErrDefinitionNotFound) {
		s.Logger.Error("Failed to load definition", zap.String("recurrence_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save definition"})
		return
	}

	if def.Enabled {
		next, err := s.Services.Engine.ResolveNext(&def, s.Services.Clock.Now())
		if err == nil {
			def.NextOccurrence = next
		}
	}

	if err := s.Services.Definitions.Save(ctx, &def); err != nil {
		s.Logger.Error("Failed to save definition", zap.String("recurrence_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save definition"})
		return
	}

	c.JSON(http.StatusOK, def)
}

func (s *Server) handleNextOccurrence(c *gin.Context) {
	def, ok := s.loadDefinition(c)
	if !ok {
		return
	}

	next, err := s.Services.Engine.ResolveNext(def, s.Services.Clock.Now())
	switch {
	case errors.Is(err, recurrence.ErrOutOfWindow):
		c.JSON(http.StatusOK, gin.H{"next": nil, "reason": "no next occurrence"})
	case errors.Is(err, recurrence.ErrInvalidDefinition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"next": next})
	}
}

func (s *Server) handleOccurrences(c *gin.Context) {
	def, ok := s.loadDefinition(c)
	if !ok {
		return
	}

	from, err := models.ParseDate(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
		return
	}
	to, err := models.ParseDate(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
		return
	}
	if err := recurrence.CheckRange(from.Date, to.Date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := recurrence.Validate(def); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	occurrences := s.Services.Engine.Generate(def, from.Date, to.Date)
	if occurrences == nil {
		occurrences = []recurrence.Occurrence{}
	}
	c.JSON(http.StatusOK, gin.H{"occurrences": occurrences})
}

func (s *Server) handleBuildQueue(c *gin.Context) {
	queued, err := s.Services.Scheduler.BuildQueue(c.Request.Context())
	if err != nil {
		s.Logger.Error("Failed to build queue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"queued": queued})
}

func (s *Server) handleListQueue(c *gin.Context) {
	status := models.QueueStatus(c.Query("status"))
	switch status {
	case "", models.QueueStatusPending, models.QueueStatusProcessing, models.QueueStatusPublished, models.QueueStatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}

	entries, err := s.Services.Entries.List(c.Request.Context(), status)
	if err != nil {
		s.Logger.Error("Failed to list queue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list queue"})
		return
	}

	if platforms := util.ParseTags(c.Query("platform")); len(platforms) > 0 {
		wanted := make(map[string]bool, len(platforms))
		for _, p := range util.NormalizePlatforms(platforms) {
			wanted[p] = true
		}
		filtered := entries[:0]
		for _, e := range entries {
			if wanted[e.Platform] {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleQueueSummary(c *gin.Context) {
	summary, err := s.Services.Monitoring.QueueSummary(c.Request.Context(), s.Services.Location)
	if err != nil {
		s.Logger.Error("Failed to summarize queue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to summarize queue"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleProcessEntry(c *gin.Context) {
	entry, ok := s.loadEntry(c)
	if !ok {
		return
	}
	s.writeOutcome(c, s.Services.Processor.Process(c.Request.Context(), entry))
}

func (s *Server) handleRetryEntry(c *gin.Context) {
	entry, ok := s.loadEntry(c)
	if !ok {
		return
	}
	s.writeOutcome(c, s.Services.Processor.Retry(c.Request.Context(), entry))
}

func (s *Server) handleListPlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": s.Services.Publisher.GetAvailablePlatforms()})
}

func (s *Server) handleRecentErrors(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	errs, err := s.Services.Monitoring.GetRecentErrors(c.Request.Context(), limit)
	if err != nil {
		s.Logger.Error("Failed to get recent errors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get errors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"errors": errs})
}

func (s *Server) handleResolveError(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := s.Services.Monitoring.ResolveError(c.Request.Context(), uint(id)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"resolved": id, "at": s.Services.Clock.Now().Format(time.RFC3339)})
}

func (s *Server) loadDefinition(c *gin.Context) (*models.RecurrenceDefinition, bool) {
	def, err := s.Services.Definitions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, recurrence.ErrDefinitionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else {
			s.Logger.Error("Failed to load definition", zap.String("recurrence_id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load definition"})
		}
		return nil, false
	}
	return def, true
}

func (s *Server) loadEntry(c *gin.Context) (*models.QueueEntry, bool) {
	entry, err := s.Services.Entries.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		} else {
			s.Logger.Error("Failed to load queue entry", zap.String("entry_id", c.Param("id")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load queue entry"})
		}
		return nil, false
	}
	return entry, true
}

func (s *Server) writeOutcome(c *gin.Context, outcome queue.Outcome) {
	resp := outcomeResponse{Outcome: outcome}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}

	status := http.StatusOK
	switch {
	case outcome.Err == nil:
	case errors.Is(outcome.Err, queue.ErrTransientPublishFailure):
		status = http.StatusBadGateway
	case errors.Is(outcome.Err, queue.ErrInvalidTransition),
		errors.Is(outcome.Err, queue.ErrAlreadyProcessing),
		errors.Is(outcome.Err, queue.ErrRetryExhausted),
		errors.Is(outcome.Err, queue.ErrBackoffPending):
		status = http.StatusConflict
	case errors.Is(outcome.Err, queue.ErrPostNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}

	c.JSON(status, resp)
}
