package notification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/silahbo-jpg/sila-system-sub000/internal/approval"
	"github.com/silahbo-jpg/sila-system-sub000/internal/logger"
)

// 通知类型
const (
	TypePendingApproval = "approval.pending" // 有新的待办审批
	TypeWorkflowDecided = "approval.decided" // 工作流已终结
)

// Message 推送给前端的统一消息结构
type Message struct {
	Type              string    `json:"type"`
	WorkflowID        string    `json:"workflow_id"`
	ApprovalRequestID string    `json:"approval_request_id"`
	ModuleName        string    `json:"module_name"`
	ServiceName       string    `json:"service_name"`
	Status            string    `json:"status"`
	Comments          string    `json:"comments,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// ApprovalNotifier 通过 WebSocketHub 投递审批站内通知。
// 实现 approval.Notifier，所有投递都是尽力而为的。
type ApprovalNotifier struct {
	hub    *WebSocketHub
	logger *zap.Logger
}

// NewApprovalNotifier 创建通知器
func NewApprovalNotifier(hub *WebSocketHub) *ApprovalNotifier {
	return &ApprovalNotifier{hub: hub, logger: logger.Get()}
}

// NotifyPendingApproval 通知审批人有新的待办
func (n *ApprovalNotifier) NotifyPendingApproval(_ context.Context, req *approval.ApprovalRequest) {
	if n.hub == nil || req.CurrentApproverID == "" {
		return
	}
	msg := &Message{
		Type:              TypePendingApproval,
		WorkflowID:        req.WorkflowID,
		ApprovalRequestID: req.ID,
		ModuleName:        req.ModuleName,
		ServiceName:       req.ServiceName,
		Status:            string(req.Status),
		OccurredAt:        time.Now().UTC(),
	}
	if err := n.hub.SendToUser(req.CurrentApproverID, msg); err != nil {
		n.logger.Debug("推送待办通知失败",
			zap.String("approverId", req.CurrentApproverID),
			zap.Error(err))
	}
}

// NotifyWorkflowDecided 通知发起人工作流已终结
func (n *ApprovalNotifier) NotifyWorkflowDecided(_ context.Context, req *approval.ApprovalRequest, status approval.ApprovalStatus, comments string) {
	if n.hub == nil || req.RequesterID == "" {
		return
	}
	msg := &Message{
		Type:              TypeWorkflowDecided,
		WorkflowID:        req.WorkflowID,
		ApprovalRequestID: req.ID,
		ModuleName:        req.ModuleName,
		ServiceName:       req.ServiceName,
		Status:            string(status),
		Comments:          comments,
		OccurredAt:        time.Now().UTC(),
	}
	if err := n.hub.SendToUser(req.RequesterID, msg); err != nil {
		n.logger.Debug("推送终结通知失败",
			zap.String("requesterId", req.RequesterID),
			zap.Error(err))
	}
}
