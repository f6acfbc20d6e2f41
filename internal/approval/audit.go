package approval

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// auditLogger 追加审批历史，每次状态变化写一行，永不读改删
type auditLogger struct{}

// log 在给定事务/连接上追加一条历史记录
func (auditLogger) log(ctx context.Context, tx *gorm.DB, entry *ApprovalHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return wrapStorage("写入审批历史", err)
	}
	return nil
}

// historyEntry 构造历史行
func historyEntry(req *ApprovalRequest, action, actorID, comments, reason string, data map[string]any) *ApprovalHistory {
	var actionData datatypes.JSONMap
	if len(data) > 0 {
		actionData = datatypes.JSONMap(data)
	}
	return &ApprovalHistory{
		ID:                uuid.New().String(),
		ApprovalRequestID: req.ID,
		WorkflowID:        req.WorkflowID,
		Action:            action,
		ActorID:           actorID,
		Comments:          comments,
		Reason:            reason,
		ActionData:        actionData,
	}
}

// GetHistory 查询一条审批请求的历史（时间正序）
func (m *Manager) GetHistory(ctx context.Context, approvalRequestID string) ([]ApprovalHistory, error) {
	var entries []ApprovalHistory
	err := m.db.WithContext(ctx).
		Where("approval_request_id = ?", approvalRequestID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, wrapStorage("查询审批历史", err)
	}
	return entries, nil
}

// GetWorkflowHistory 查询整条审批链的历史（时间正序）
func (m *Manager) GetWorkflowHistory(ctx context.Context, workflowID string) ([]ApprovalHistory, error) {
	var entries []ApprovalHistory
	err := m.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, wrapStorage("查询审批历史", err)
	}
	return entries, nil
}
