package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ApiResponse 统一的API响应格式
type ApiResponse struct {
	Code    int    `json:"code"`    // 状态码，0表示成功
	Message string `json:"message"` // 响应消息
	Data    any    `json:"data"`    // 响应数据
}

// respondOK 创建成功响应
func respondOK(c *gin.Context, data any, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// respondError 创建错误响应，业务码与 HTTP 状态码分离
func respondError(c *gin.Context, status, code int, message string) {
	c.JSON(status, ApiResponse{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}
