package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/silahbo-jpg/sila-system-sub000/internal/approval"
	"github.com/silahbo-jpg/sila-system-sub000/internal/worker/tasks"
)

func newSweepFixture(t *testing.T) (*SweepHandler, *approval.Manager, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:sweep_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&approval.ServiceApprovalConfig{},
		&approval.ApprovalRequest{},
		&approval.ApprovalHistory{},
	))

	registry := approval.NewConfigRegistry(db)
	_, err = registry.ConfigureServiceApproval(context.Background(), &approval.ConfigInput{
		ModuleName:  "finance",
		ServiceName: "MicroCredito",
		ApprovalLevels: []approval.LevelSpec{
			{Level: approval.Level1, ApproverIDs: []string{"officer-1"}, Required: true},
		},
		EscalationTimeoutHours: 24,
	})
	require.NoError(t, err)

	manager := approval.NewManager(db, registry)
	return NewSweepHandler(manager, nil, zap.NewNop()), manager, db
}

func TestHandleSweepOverdueEscalates(t *testing.T) {
	handler, manager, db := newSweepFixture(t)
	ctx := context.Background()

	chain, err := manager.RequestApproval(ctx, &approval.RequestInput{
		ServiceRequestID: uuid.NewString(),
		ModuleName:       "finance",
		ServiceName:      "MicroCredito",
		RequesterID:      "citizen-1",
		RequestData:      map[string]any{"amount": 100},
	})
	require.NoError(t, err)
	require.Len(t, chain, 1)

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.Model(&approval.ApprovalRequest{}).
		Where("id = ?", chain[0].ID).
		Update("due_date", past).Error)

	payload, err := json.Marshal(tasks.SweepOverduePayload{TriggeredBy: "scheduler"})
	require.NoError(t, err)
	task := asynq.NewTask(tasks.TypeSweepOverdue, payload)

	require.NoError(t, handler.HandleSweepOverdue(ctx, task))

	req, err := manager.GetRequest(ctx, chain[0].ID)
	require.NoError(t, err)
	require.Equal(t, approval.StatusEscalated, req.Status)
}

func TestHandleSweepOverdueEmptyPayload(t *testing.T) {
	handler, _, _ := newSweepFixture(t)

	// 调度器触发的任务没有载荷，处理器必须容忍
	task := asynq.NewTask(tasks.TypeSweepOverdue, nil)
	require.NoError(t, handler.HandleSweepOverdue(context.Background(), task))
}
