package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "timeronline/backend/internal/errors"
	"timeronline/backend/internal/middleware"
	"timeronline/backend/internal/model"
	"timeronline/backend/internal/service"
)

type TimerHandler struct {
	timerService *service.TimerService
}

// instant accepts either an RFC 3339 string or epoch milliseconds.
type instant struct {
	time.Time
}

func (i *instant) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			i.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		i.Time = parsed.UTC()
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	i.Time = time.UnixMilli(ms).UTC()
	return nil
}

type createTimerRequest struct {
	Type        model.Kind        `json:"type"`
	Mode        model.Mode        `json:"mode"`
	Duration    float64           `json:"duration"`
	Target      *instant          `json:"target"`
	Name        string            `json:"timerName"`
	DisplayMode model.DisplayMode `json:"displayMode"`
}

type versionRequest struct {
	BaseVersion int `json:"baseVersion"`
}

type targetRequest struct {
	BaseVersion int      `json:"baseVersion"`
	Target      *instant `json:"target"`
}

type displayModeRequest struct {
	BaseVersion int               `json:"baseVersion"`
	DisplayMode model.DisplayMode `json:"displayMode"`
}

type importRequest struct {
	Token string `json:"token"`
}

func NewTimerHandler(timerService *service.TimerService) *TimerHandler {
	return &TimerHandler{timerService: timerService}
}

func (h *TimerHandler) List(c *gin.Context) {
	timers, apiErr := h.timerService.List(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timers": timers})
}

func (h *TimerHandler) Create(c *gin.Context) {
	var req createTimerRequest
	if !bindJSON(c, &req, false) {
		return
	}

	input := service.CreateTimerInput{
		Kind:            req.Type,
		Mode:            req.Mode,
		DurationSeconds: req.Duration,
		Name:            req.Name,
		DisplayMode:     req.DisplayMode,
	}
	if req.Target != nil && !req.Target.IsZero() {
		target := req.Target.Time
		input.Target = &target
	}

	timer, apiErr := h.timerService.Create(c.Request.Context(), middleware.UserID(c), input)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"timer": timer})
}

func (h *TimerHandler) Import(c *gin.Context) {
	var req importRequest
	if !bindJSON(c, &req, false) {
		return
	}

	result, apiErr := h.timerService.Import(c.Request.Context(), middleware.UserID(c), req.Token)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *TimerHandler) Get(c *gin.Context) {
	timer, apiErr := h.timerService.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer})
}

func (h *TimerHandler) Toggle(c *gin.Context) {
	var req versionRequest
	if !bindVersion(c, &req) {
		return
	}

	timer, apiErr := h.timerService.Toggle(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer})
}

func (h *TimerHandler) Reset(c *gin.Context) {
	var req versionRequest
	if !bindVersion(c, &req) {
		return
	}

	timer, apiErr := h.timerService.Reset(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer})
}

func (h *TimerHandler) ChangeTarget(c *gin.Context) {
	var req targetRequest
	if !bindJSON(c, &req, false) {
		return
	}
	if req.BaseVersion < 0 {
		writeError(c, apperrors.BadRequest("invalid_base_version", "baseVersion must not be negative"))
		return
	}
	if req.Target == nil || req.Target.IsZero() {
		writeError(c, apperrors.BadRequest("invalid_target", "target time is required"))
		return
	}

	timer, apiErr := h.timerService.ChangeTarget(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.BaseVersion, req.Target.Time)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer})
}

func (h *TimerHandler) SetDisplayMode(c *gin.Context) {
	var req displayModeRequest
	if !bindJSON(c, &req, false) {
		return
	}
	if req.BaseVersion < 0 {
		writeError(c, apperrors.BadRequest("invalid_base_version", "baseVersion must not be negative"))
		return
	}

	timer, apiErr := h.timerService.SetDisplayMode(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.BaseVersion, req.DisplayMode)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timer": timer})
}

func (h *TimerHandler) Delete(c *gin.Context) {
	if apiErr := h.timerService.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TimerHandler) Share(c *gin.Context) {
	links, apiErr := h.timerService.Share(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, links)
}

// bindVersion reads an optional {baseVersion} body. Zero skips the check.
func bindVersion(c *gin.Context, req *versionRequest) bool {
	if !bindJSON(c, req, true) {
		return false
	}
	if req.BaseVersion < 0 {
		writeError(c, apperrors.BadRequest("invalid_base_version", "baseVersion must not be negative"))
		return false
	}
	return true
}
