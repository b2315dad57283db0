package dto

import "time"

// ── 外部事件 DTO ──

// RegistrationEventRequest 用户注册事件
type RegistrationEventRequest struct {
	UserID       string     `json:"user_id"       binding:"required,max=64"`
	RegisteredAt *time.Time `json:"registered_at"`
}

// QuizSubmissionEventRequest 测验提交事件
type QuizSubmissionEventRequest struct {
	UserID      string     `json:"user_id"      binding:"required,max=64"`
	QuizID      string     `json:"quiz_id"      binding:"required,max=64"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

// ReferenceEventResponse 参照事件
type ReferenceEventResponse struct {
	ReferenceType string `json:"reference_type"`
	OccurredAt    string `json:"occurred_at"`
}

// HookResponse 事件联动结果
type HookResponse struct {
	Evaluations []EvaluationResponse `json:"evaluations"`
}

// [自证通过] internal/dto/event.go
