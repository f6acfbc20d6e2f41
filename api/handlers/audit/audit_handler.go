package audit

import (
	"time"

	"github.com/gin-gonic/gin"

	auditpkg "github.com/silahbo-jpg/sila-system-sub000/internal/audit"
	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
)

// AuditHandler 管理审计日志查询处理器（仅管理员）
type AuditHandler struct {
	logs *auditpkg.AdminAuditLogger
}

// NewAuditHandler 创建处理器
func NewAuditHandler(logs *auditpkg.AdminAuditLogger) *AuditHandler {
	return &AuditHandler{logs: logs}
}

// QueryRequest 审计日志查询参数
type QueryRequest struct {
	From   string `form:"from"`   // RFC3339
	To     string `form:"to"`     // RFC3339
	UserID string `form:"user_id"`
	Action string `form:"action"`
	common.PaginationRequest
}

// Query 分页查询审计日志
func (h *AuditHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	filter := auditpkg.LogFilter{
		UserID: req.UserID,
		Action: req.Action,
		Limit:  req.GetPageSize(),
		Offset: req.GetOffset(),
	}
	if req.From != "" {
		t, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			common.ResponseBadRequest(c, "from 时间格式错误")
			return
		}
		filter.From = &t
	}
	if req.To != "" {
		t, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			common.ResponseBadRequest(c, "to 时间格式错误")
			return
		}
		filter.To = &t
	}

	logs, total, err := h.logs.Query(c.Request.Context(), filter)
	if err != nil {
		common.ResponseServerError(c, "")
		return
	}

	common.ResponseList(c, logs, total, &req.PaginationRequest)
}
