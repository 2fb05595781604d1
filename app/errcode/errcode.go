// Package errcode 定义对外统一的数字错误码，0 表示成功
package errcode

const (
	OK               = 0
	InvalidParam     = 1001
	NotFound         = 1002
	DBError          = 1003
	ExternalService  = 1004
	Timeout          = 1005
	RateLimited      = 1006
	Unauthorized     = 1007
	SignatureInvalid = 1008
	Conflict         = 1009
)
