package approvals

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/silahbo-jpg/sila-system-sub000/internal/approval"
	"github.com/silahbo-jpg/sila-system-sub000/internal/audit"
	"github.com/silahbo-jpg/sila-system-sub000/internal/auth"
	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
	"github.com/silahbo-jpg/sila-system-sub000/internal/infra/queue"
	"github.com/silahbo-jpg/sila-system-sub000/internal/logger"
)

// AdminHandler 审批数据管理处理器（仅管理员）
type AdminHandler struct {
	manager *approval.Manager
	queue   queue.Client
	audit   *audit.AdminAuditLogger
	logger  *zap.Logger
}

// NewAdminHandler 创建处理器。queue 可为 nil，此时巡检退化为同步执行。
func NewAdminHandler(manager *approval.Manager, queueClient queue.Client, auditLogger *audit.AdminAuditLogger) *AdminHandler {
	return &AdminHandler{
		manager: manager,
		queue:   queueClient,
		audit:   auditLogger,
		logger:  logger.Get(),
	}
}

// HardDelete 硬删除一条终态审批请求。
// 非终态请求会被拒绝；删除动作本身记入审批历史与管理审计。
func (h *AdminHandler) HardDelete(c *gin.Context) {
	id := c.Param("id")

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	if err := h.manager.HardDeleteTerminalRequest(c.Request.Context(), id, userCtx.UserID); err != nil {
		respondApprovalError(c, err)
		return
	}

	h.audit.LogAction(c.Request.Context(), userCtx.UserID, audit.EventApprovalHardDelete,
		"approval_request", id, nil)

	common.ResponseNoContent(c)
}

// TriggerSweep 手动触发一次超时巡检。
// 优先投递到任务队列，队列不可用时在当前请求内同步执行。
func (h *AdminHandler) TriggerSweep(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	h.audit.LogAction(c.Request.Context(), userCtx.UserID, audit.EventSweepTrigger,
		"approval_sweep", "", nil)

	if h.queue != nil {
		if err := h.queue.EnqueueSweepOverdue(userCtx.UserID); err == nil {
			common.ResponseSuccessMessage(c, "巡检任务已入队", nil)
			return
		} else {
			h.logger.Warn("巡检任务入队失败，改为同步执行", zap.Error(err))
		}
	}

	result, err := h.manager.SweepOverdue(c.Request.Context())
	if err != nil {
		respondApprovalError(c, err)
		return
	}
	common.ResponseSuccess(c, result)
}
