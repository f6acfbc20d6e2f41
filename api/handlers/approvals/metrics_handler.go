package approvals

import (
	"github.com/gin-gonic/gin"

	"github.com/silahbo-jpg/sila-system-sub000/internal/approval"
	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
)

// MetricsHandler 审批聚合指标处理器
type MetricsHandler struct {
	manager *approval.Manager
}

// NewMetricsHandler 创建处理器
func NewMetricsHandler(manager *approval.Manager) *MetricsHandler {
	return &MetricsHandler{manager: manager}
}

// Get 返回审批工作流的聚合指标快照
func (h *MetricsHandler) Get(c *gin.Context) {
	stats, err := h.manager.GetApprovalMetrics(c.Request.Context())
	if err != nil {
		respondApprovalError(c, err)
		return
	}
	common.ResponseSuccess(c, stats)
}
