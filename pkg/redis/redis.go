package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"exam-timetable/config"
)

// Client Redis 客户端封装
// 用于 Token 黑名单、接口限流存储和排考任务进度快照缓存
type Client struct {
	rdb         *goredis.Client
	progressTTL time.Duration
	logger      *zap.Logger
}

// NewClient 创建 Redis 连接并执行 Ping 健康检查
func NewClient(cfg *config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", zap.String("addr", cfg.Addr))

	ttl := cfg.ProgressTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Client{rdb: rdb, progressTTL: ttl, logger: logger}, nil
}

// ── Token 黑名单 ──

const blacklistPrefix = "token:blacklist:"

// BlacklistToken 将 JWT ID 加入黑名单，TTL 与 Token 剩余有效期一致
func (c *Client) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // Token 已过期，无需加入黑名单
	}
	return c.rdb.Set(ctx, blacklistPrefix+jti, "1", ttl).Err()
}

// IsBlacklisted 检查 JWT ID 是否在黑名单中
func (c *Client) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := c.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Raw 底层客户端，供限流中间件的 Redis 存储使用
func (c *Client) Raw() *goredis.Client {
	return c.rdb
}

// ── 任务进度快照 ──

const progressPrefix = "timetable:job:progress:"

// ProgressSnapshot 排考任务进度快照（轮询读取，允许轻微滞后）
type ProgressSnapshot struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetProgress 写入进度快照
func (c *Client) SetProgress(ctx context.Context, snap *ProgressSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, progressPrefix+snap.JobID, b, c.progressTTL).Err()
}

// GetProgress 读取进度快照，不存在时返回 (nil, nil)
func (c *Client) GetProgress(ctx context.Context, jobID string) (*ProgressSnapshot, error) {
	b, err := c.rdb.Get(ctx, progressPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snap ProgressSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		c.logger.Warn("进度快照格式无效，已忽略", zap.String("job_id", jobID), zap.Error(err))
		return nil, nil
	}
	return &snap, nil
}

// DeleteProgress 任务进入终态后清理快照
func (c *Client) DeleteProgress(ctx context.Context, jobID string) error {
	return c.rdb.Del(ctx, progressPrefix+jobID).Err()
}

// Close 关闭 Redis 连接
func (c *Client) Close() error {
	return c.rdb.Close()
}
