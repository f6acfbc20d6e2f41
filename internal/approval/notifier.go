package approval

import "context"

// Notifier 审批站内通知接口。
// 实现必须是尽力而为的：通知失败不影响审批流程本身。
type Notifier interface {
	// NotifyPendingApproval 通知审批人有新的待办
	NotifyPendingApproval(ctx context.Context, req *ApprovalRequest)
	// NotifyWorkflowDecided 通知发起人工作流已终结
	NotifyWorkflowDecided(ctx context.Context, req *ApprovalRequest, status ApprovalStatus, comments string)
}

// NopNotifier 空实现
type NopNotifier struct{}

func (NopNotifier) NotifyPendingApproval(context.Context, *ApprovalRequest) {}

func (NopNotifier) NotifyWorkflowDecided(context.Context, *ApprovalRequest, ApprovalStatus, string) {}
