package service

import "fitcoach/backend/internal/model"

// IsPresentable 判断测验在给定时间段状态下是否可展示给用户
//
//	RESPECT_TIMEFRAME       仅时间段内可见
//	ALL_USERS               始终可见
//	OUTSIDE_TIMEFRAME_ONLY  仅时间段外可见（从未配置时间段的用户视为时间段外）
//
// 纯函数，排程与物化时各调用一次。
func IsPresentable(handling model.TimeFrameHandling, isWithinTimeFrame bool) bool {
	switch handling {
	case model.HandlingRespectTimeFrame:
		return isWithinTimeFrame
	case model.HandlingOutsideTimeFrameOnly:
		return !isWithinTimeFrame
	default:
		return true
	}
}
