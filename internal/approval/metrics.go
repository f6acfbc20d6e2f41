package approval

import (
	"context"

	"gorm.io/gorm"

	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
)

// GetApprovalMetrics 汇总审批指标。
// 只读聚合，任何分母为零的比率都返回 0 而不是报错。
func (m *Manager) GetApprovalMetrics(ctx context.Context) (*Metrics, error) {
	out := &Metrics{}

	type statusCount struct {
		Status ApprovalStatus
		Count  int64
	}
	var counts []statusCount
	if err := m.db.WithContext(ctx).
		Model(&ApprovalRequest{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&counts).Error; err != nil {
		return nil, wrapStorage("统计审批状态", err)
	}

	for _, c := range counts {
		out.TotalRequests += c.Count
		switch c.Status {
		case StatusPending, StatusWaiting:
			out.PendingCount += c.Count
		case StatusApproved:
			out.ApprovedCount = c.Count
		case StatusRejected:
			out.RejectedCount = c.Count
		case StatusEscalated:
			out.EscalatedCount = c.Count
		case StatusExpired:
			out.ExpiredCount = c.Count
		case StatusCancelled:
			out.CancelledCount = c.Count
		}
	}

	if decided := out.ApprovedCount + out.RejectedCount; decided > 0 {
		out.ApprovalRate = float64(out.ApprovedCount) / float64(decided)
	}

	// 平均审批耗时只统计已批准的行
	if out.ApprovedCount > 0 {
		var avgHours *float64
		err := m.db.WithContext(ctx).
			Model(&ApprovalRequest{}).
			Where("status = ? AND approved_at IS NOT NULL", StatusApproved).
			Select(avgDurationExpr(m.db)).
			Scan(&avgHours).Error
		if err != nil {
			return nil, wrapStorage("统计平均审批耗时", err)
		}
		if avgHours != nil {
			out.AvgApprovalHours = *avgHours
		}
	}

	var totalConfigs, activeConfigs int64
	if err := m.db.WithContext(ctx).Model(&ServiceApprovalConfig{}).Count(&totalConfigs).Error; err != nil {
		return nil, wrapStorage("统计审批配置", err)
	}
	if totalConfigs > 0 {
		if err := m.db.WithContext(ctx).
			Model(&ServiceApprovalConfig{}).
			Scopes(common.EnabledOnly()).
			Count(&activeConfigs).Error; err != nil {
			return nil, wrapStorage("统计启用的审批配置", err)
		}
		out.ServicesRequiringApprovalPct = float64(activeConfigs) / float64(totalConfigs) * 100
	}

	return out, nil
}

// avgDurationExpr 按方言生成平均耗时（小时）表达式，
// 测试用 sqlite，生产用 postgres
func avgDurationExpr(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return "AVG((julianday(approved_at) - julianday(created_at)) * 24) AS avg_hours"
	}
	return "AVG(EXTRACT(EPOCH FROM (approved_at - created_at)) / 3600) AS avg_hours"
}
