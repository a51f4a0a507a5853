package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"exam-timetable/pkg/redis"
	"exam-timetable/pkg/response"
)

const rateLimitPrefix = "examtt:rate_limit"

// NewLimiterStore 有 Redis 时多实例共享计数，否则退回进程内存
func NewLimiterStore(rdb *redis.Client, logger *zap.Logger) limiter.Store {
	if rdb != nil {
		store, err := sredis.NewStoreWithOptions(rdb.Raw(), limiter.StoreOptions{
			Prefix:   rateLimitPrefix,
			MaxRetry: 3,
		})
		if err == nil {
			return store
		}
		logger.Warn("创建 Redis 限流存储失败，改用内存存储", zap.Error(err))
	}
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          rateLimitPrefix,
		CleanUpInterval: time.Minute,
	})
}

// RateLimit 每个客户端 IP 对每个路由每分钟至多 perMinute 次；perMinute <= 0 关闭限流。
// 存储出错时降级放行。
func RateLimit(store limiter.Store, perMinute int, logger *zap.Logger) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	rate := limiter.Rate{Period: time.Minute, Limit: int64(perMinute)}
	return mgin.NewMiddleware(
		limiter.New(store, rate),
		mgin.WithKeyGetter(func(c *gin.Context) string {
			return c.ClientIP() + ":" + c.FullPath()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			response.TooManyRequests(c)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.Warn("限流存储异常，降级放行", zap.String("path", c.FullPath()), zap.Error(err))
			c.Next()
		}),
	)
}
