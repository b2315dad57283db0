package handler

import (
	"fitcoach/backend/internal/dto"
	"fitcoach/backend/internal/service"
)

func toEvaluationList(list []service.EvaluationResult) []dto.EvaluationResponse {
	out := make([]dto.EvaluationResponse, 0, len(list))
	for _, r := range list {
		out = append(out, toEvaluation(&r))
	}
	return out
}

func toEvaluation(r *service.EvaluationResult) dto.EvaluationResponse {
	return dto.NewEvaluationResponse(r.QuizID, string(r.Outcome), r.Presentable, r.ScheduledFor, r.Reason)
}

func toSweepReport(r *service.SweepReport) *dto.SweepReportResponse {
	if r == nil {
		return nil
	}
	return &dto.SweepReportResponse{
		ExpiredPeriods: r.ExpiredPeriods,
		Scanned:        r.Scanned,
		Promoted:       r.Promoted,
		Blocked:        r.Blocked,
		Cancelled:      r.Cancelled,
		LostRace:       r.LostRace,
		Deferred:       r.Deferred,
		Failed:         r.Failed,
		Duration:       r.Duration.String(),
	}
}

func toStatus(s *service.TimeFrameStatus) dto.TimeFrameStatusResponse {
	resp := dto.TimeFrameStatusResponse{
		IsWithinTimeFrame: s.IsWithinTimeFrame,
		DaysUntilEnd:      s.DaysUntilEnd,
	}
	if s.ActivePeriod != nil {
		p := dto.NewTimeFramePeriodResponse(s.ActivePeriod)
		resp.ActivePeriod = &p
	}
	return resp
}

func toTimeFrameChange(ch *service.TimeFrameChange) dto.SetTimeFrameResponse {
	resp := dto.SetTimeFrameResponse{
		Period:       dto.NewTimeFramePeriodResponse(ch.Period),
		Unchanged:    ch.Unchanged,
		WithinBefore: ch.Before.IsWithinTimeFrame,
		WithinAfter:  ch.After.IsWithinTimeFrame,
	}
	if ch.Replaced != nil {
		p := dto.NewTimeFramePeriodResponse(ch.Replaced)
		resp.Replaced = &p
	}
	if ch.Hook != nil {
		resp.Evaluations = toEvaluationList(ch.Hook.Evaluations)
		resp.Materialized = toSweepReport(ch.Hook.Materialized)
	}
	return resp
}

func toMyQuizzes(list []service.MyQuiz) []dto.MyQuizResponse {
	out := make([]dto.MyQuizResponse, 0, len(list))
	for _, q := range list {
		pending := dto.NewPendingResponse(&q.Assignment)
		out = append(out, dto.MyQuizResponse{
			AssignmentID: pending.AssignmentID,
			QuizID:       pending.QuizID,
			Title:        q.Quiz.Title,
			Source:       pending.Source,
			AssignedAt:   pending.AssignedAt,
		})
	}
	return out
}
