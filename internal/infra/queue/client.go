package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/silahbo-jpg/sila-system-sub000/internal/config"
	"github.com/silahbo-jpg/sila-system-sub000/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueSweepOverdue(triggeredBy string) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg *config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

// EnqueueSweepOverdue 插队一次超时扫描（管理员手工触发）
func (c *asynqClient) EnqueueSweepOverdue(triggeredBy string) error {
	payload, err := json.Marshal(tasks.SweepOverduePayload{TriggeredBy: triggeredBy})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeSweepOverdue, payload)

	// 扫描是幂等的，重试无害
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("approval"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
