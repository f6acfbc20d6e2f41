package approval

import (
	"context"
	"time"

	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
	"github.com/silahbo-jpg/sila-system-sub000/internal/metrics"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SweepResult 一次超时扫描的结果
type SweepResult struct {
	Escalated int
	Expired   int
}

// SweepOverdue 处理超时的审批请求，供后台任务周期调用。
// 两段式：pending 超时先升级为 escalated 并按配置顺延期限；
// escalated 仍然超时则置为 expired 并像拒绝一样级联终结整条链。
func (m *Manager) SweepOverdue(ctx context.Context) (*SweepResult, error) {
	ctx, span := m.tracer.Start(ctx, "approval.SweepOverdue")
	defer span.End()

	result := &SweepResult{}
	now := time.Now().UTC()

	escalated, err := m.escalateOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	result.Escalated = escalated

	expired, err := m.expireOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	result.Expired = expired

	if result.Escalated > 0 || result.Expired > 0 {
		m.logger.Info("超时扫描完成",
			zap.Int("escalated", result.Escalated),
			zap.Int("expired", result.Expired),
		)
	}
	return result, nil
}

func (m *Manager) escalateOverdue(ctx context.Context, now time.Time) (int, error) {
	var overdue []ApprovalRequest
	if err := m.db.WithContext(ctx).
		Scopes(common.ByStatus(string(StatusPending))).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Find(&overdue).Error; err != nil {
		return 0, wrapStorage("查询超时待审批请求", err)
	}

	count := 0
	for i := range overdue {
		req := &overdue[i]
		cfg, err := m.registry.GetConfig(ctx, req.ModuleName, req.ServiceName)
		if err != nil {
			m.logger.Warn("超时升级时找不到审批配置",
				zap.String("approvalRequestId", req.ID),
				zap.Error(err),
			)
			continue
		}
		newDue := now.Add(time.Duration(cfg.EscalationTimeoutHours) * time.Hour)

		err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&ApprovalRequest{}).
				Where("id = ? AND version = ?", req.ID, req.Version).
				Updates(map[string]any{
					"status":     StatusEscalated,
					"due_date":   newDue,
					"version":    req.Version + 1,
					"updated_at": now,
				})
			if result.Error != nil {
				return wrapStorage("升级审批请求", result.Error)
			}
			if result.RowsAffected == 0 {
				// 审批人抢先处理了，跳过
				return nil
			}
			return m.audit.log(ctx, tx, historyEntry(req, ActionEscalated, "system", "", "审批超时升级", map[string]any{
				"newDueDate": newDue.Format(time.RFC3339),
			}))
		})
		if err != nil {
			return count, err
		}
		count++
		metrics.ApprovalEscalationsTotal.WithLabelValues(req.ModuleName).Inc()
		m.publishEvent(WorkflowEvent{
			WorkflowID:        req.WorkflowID,
			ApprovalRequestID: req.ID,
			ModuleName:        req.ModuleName,
			ServiceName:       req.ServiceName,
			Status:            StatusEscalated,
			OccurredAt:        now,
		})
	}
	return count, nil
}

func (m *Manager) expireOverdue(ctx context.Context, now time.Time) (int, error) {
	var overdue []ApprovalRequest
	if err := m.db.WithContext(ctx).
		Scopes(common.ByStatus(string(StatusEscalated))).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Find(&overdue).Error; err != nil {
		return 0, wrapStorage("查询升级后仍超时的请求", err)
	}

	count := 0
	for i := range overdue {
		req := &overdue[i]
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&ApprovalRequest{}).
				Where("id = ? AND version = ?", req.ID, req.Version).
				Updates(map[string]any{
					"status":     StatusExpired,
					"version":    req.Version + 1,
					"updated_at": now,
				})
			if result.Error != nil {
				return wrapStorage("过期审批请求", result.Error)
			}
			if result.RowsAffected == 0 {
				return nil
			}
			if err := m.audit.log(ctx, tx, historyEntry(req, ActionExpired, "system", "", "审批请求超时失效", nil)); err != nil {
				return err
			}
			// 过期与拒绝同样终结整条链
			return m.cascade(ctx, tx, req.WorkflowID, req.ID, StatusExpired, ActionExpiredCascade, "system", "上游级别超时失效", now)
		})
		if err != nil {
			return count, err
		}
		count++
		metrics.ApprovalPendingGauge.WithLabelValues(req.ModuleName).Dec()
		metrics.ApprovalDecisionsTotal.WithLabelValues(req.ModuleName, string(StatusExpired), "system").Inc()
		m.publishEvent(WorkflowEvent{
			WorkflowID:        req.WorkflowID,
			ApprovalRequestID: req.ID,
			ModuleName:        req.ModuleName,
			ServiceName:       req.ServiceName,
			Status:            StatusExpired,
			Completed:         true,
			OccurredAt:        now,
		})
	}
	return count, nil
}
