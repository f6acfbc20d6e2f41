package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func backdateDueDate(t *testing.T, db *gorm.DB, id string, d time.Duration) {
	t.Helper()
	past := time.Now().UTC().Add(-d)
	require.NoError(t, db.Model(&ApprovalRequest{}).
		Where("id = ?", id).
		Update("due_date", past).Error)
}

func TestSweepOverdueEscalatesThenExpires(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(60000))
	require.NoError(t, err)
	require.Len(t, chain, 2)

	// 第一阶段：pending 超时升级为 escalated，期限按配置顺延
	backdateDueDate(t, db, chain[0].ID, time.Hour)
	result, err := mgr.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Escalated)
	require.Zero(t, result.Expired)

	escalated, err := mgr.GetRequest(ctx, chain[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusEscalated, escalated.Status)
	require.NotNil(t, escalated.DueDate)
	require.True(t, escalated.DueDate.After(time.Now().UTC()))

	// 升级后仍是存活状态，审批人还能处理
	pending, err := mgr.GetPendingApprovals(ctx, "officer-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// 第二阶段：escalated 仍超时则过期并级联终结整条链
	backdateDueDate(t, db, chain[0].ID, time.Hour)
	result, err = mgr.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Escalated)
	require.Equal(t, 1, result.Expired)

	expired, err := mgr.GetRequest(ctx, chain[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, expired.Status)

	sibling, err := mgr.GetRequest(ctx, chain[1].ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, sibling.Status)

	history, err := mgr.GetWorkflowHistory(ctx, chain[0].WorkflowID)
	require.NoError(t, err)
	actions := make(map[string]int)
	for _, h := range history {
		actions[h.Action]++
	}
	require.Equal(t, 1, actions[ActionEscalated])
	require.Equal(t, 1, actions[ActionExpired])
	require.Equal(t, 1, actions[ActionExpiredCascade])
}

func TestSweepOverdueIgnoresFreshRequests(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(20000))
	require.NoError(t, err)

	result, err := mgr.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Escalated)
	require.Zero(t, result.Expired)

	req, err := mgr.GetRequest(ctx, chain[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)
}

func TestSweepOverdueIsIdempotent(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(20000))
	require.NoError(t, err)
	backdateDueDate(t, db, chain[0].ID, time.Hour)

	_, err = mgr.SweepOverdue(ctx)
	require.NoError(t, err)

	// 升级后的期限在未来，重复扫描不应有动作
	result, err := mgr.SweepOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Escalated)
	require.Zero(t, result.Expired)
}
