package util

// 幂等键请求头，客户端重试时携带相同的值
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	MaxAttemptIDLength = 64
	DefaultPageLimit   = 20
	MaxPageLimit       = 100
)
