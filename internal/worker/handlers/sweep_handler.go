package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/silahbo-jpg/sila-system-sub000/internal/approval"
	"github.com/silahbo-jpg/sila-system-sub000/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// sweepLockKey 超时扫描的分布式锁键
const sweepLockKey = "sila:approval:sweep_lock"

// sweepLockTTL 锁的存活时间，覆盖一次扫描的最长耗时
const sweepLockTTL = 5 * time.Minute

// SweepHandler 审批超时扫描任务处理器
type SweepHandler struct {
	manager *approval.Manager
	rdb     *redis.Client
	logger  *zap.Logger
}

// NewSweepHandler 创建扫描处理器。rdb 允许为 nil（单实例部署跳过分布式锁）。
func NewSweepHandler(manager *approval.Manager, rdb *redis.Client, logger *zap.Logger) *SweepHandler {
	return &SweepHandler{manager: manager, rdb: rdb, logger: logger}
}

// HandleSweepOverdue 执行一轮超时升级/过期扫描。
// 多实例部署时用 Redis SETNX 锁保证同一时刻只有一个实例在扫。
func (h *SweepHandler) HandleSweepOverdue(ctx context.Context, task *asynq.Task) error {
	var payload tasks.SweepOverduePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			h.logger.Warn("解析扫描任务载荷失败", zap.Error(err))
		}
	}

	if h.rdb != nil {
		ok, err := h.rdb.SetNX(ctx, sweepLockKey, payload.TriggeredBy, sweepLockTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			// 其它实例正在扫描
			h.logger.Debug("超时扫描已在别处运行，跳过")
			return nil
		}
		defer h.rdb.Del(context.WithoutCancel(ctx), sweepLockKey)
	}

	result, err := h.manager.SweepOverdue(ctx)
	if err != nil {
		return err
	}

	h.logger.Info("审批超时扫描完成",
		zap.String("triggeredBy", payload.TriggeredBy),
		zap.Int("escalated", result.Escalated),
		zap.Int("expired", result.Expired),
	)
	return nil
}
