package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
	"github.com/silahbo-jpg/sila-system-sub000/internal/logger"
	"github.com/silahbo-jpg/sila-system-sub000/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Manager 审批工作流管理器。
// 独占 ApprovalRequest / ApprovalHistory 的全部写入；
// 不在进程内缓存任何审批状态，所有读取都走存储。
type Manager struct {
	db       *gorm.DB
	registry *ConfigRegistry
	resolver RoleResolver
	logger   *zap.Logger
	eventBus *EventBus
	notifier Notifier
	audit    auditLogger
	tracer   trace.Tracer
}

// ManagerOption 自定义配置
type ManagerOption func(*Manager)

// WithRoleResolver 注入角色解析器
func WithRoleResolver(resolver RoleResolver) ManagerOption {
	return func(m *Manager) { m.resolver = resolver }
}

// WithEventBus 注入事件总线
func WithEventBus(bus *EventBus) ManagerOption {
	return func(m *Manager) { m.eventBus = bus }
}

// WithManagerLogger 注入自定义日志器
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithNotifier 注入站内通知器
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// NewManager 创建审批管理器
func NewManager(db *gorm.DB, registry *ConfigRegistry, opts ...ManagerOption) *Manager {
	mgr := &Manager{
		db:       db,
		registry: registry,
		resolver: NewStaticRoleResolver(nil),
		logger:   logger.Get(),
		notifier: NopNotifier{},
		tracer:   otel.Tracer("internal/approval"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr
}

// RequestInput 发起审批的输入
type RequestInput struct {
	ServiceRequestID string
	ModuleName       string
	ServiceName      string
	RequesterID      string
	RequestData      map[string]any
	Justification    string
}

// RequestApproval 为一次敏感操作构建审批链。
// 返回空切片表示本次操作不需要审批，调用方可直接执行；
// 非空时调用方必须阻塞业务操作直到整条链批准完成。
func (m *Manager) RequestApproval(ctx context.Context, in *RequestInput) ([]ApprovalRequest, error) {
	ctx, span := m.tracer.Start(ctx, "approval.RequestApproval",
		trace.WithAttributes(
			attribute.String("module", in.ModuleName),
			attribute.String("service", in.ServiceName),
		))
	defer span.End()

	cfg, err := m.registry.GetConfig(ctx, in.ModuleName, in.ServiceName)
	if err != nil {
		return nil, err
	}
	if !cfg.RequiresApproval {
		// 配置被管理员显式停用，放行
		return []ApprovalRequest{}, nil
	}

	// 全局门槛只在这里评估一次，不会按级别重复评估
	globalCond, err := ParseCondition(cfg.ApprovalConditions)
	if err != nil {
		return nil, err
	}
	if !Evaluate(globalCond, in.RequestData) {
		return []ApprovalRequest{}, nil
	}

	chain, err := m.buildChain(ctx, cfg, in)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		// 所有级别都被条件跳过
		return []ApprovalRequest{}, nil
	}

	now := time.Now().UTC()
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range chain {
			if err := tx.Create(&chain[i]).Error; err != nil {
				return wrapStorage("创建审批请求", err)
			}
			entry := historyEntry(&chain[i], ActionRequestCreated, in.RequesterID, "", in.Justification, map[string]any{
				"levelOrder":   chain[i].LevelOrder,
				"isFinalLevel": chain[i].IsFinalLevel,
			})
			if err := m.audit.log(ctx, tx, entry); err != nil {
				return err
			}
			if chain[i].Status == StatusPending {
				metrics.ApprovalPendingGauge.WithLabelValues(chain[i].ModuleName).Inc()
			}
		}
		return m.applyAutoDecisions(ctx, tx, cfg, chain, now)
	})
	if err != nil {
		return nil, err
	}

	// 事务提交后重新读取，拿到自动决策后的最终状态
	final, err := m.GetWorkflow(ctx, chain[0].WorkflowID)
	if err != nil {
		return nil, err
	}

	metrics.ApprovalChainsCreatedTotal.WithLabelValues(in.ModuleName).Inc()
	metrics.ApprovalChainLength.WithLabelValues(in.ModuleName).Observe(float64(len(final)))

	// 整条链在创建事务里就被自动批准时，工作流此刻已终结
	complete := true
	for i := range final {
		if !final[i].Status.Terminal() {
			complete = false
			break
		}
	}
	m.publishEvent(WorkflowEvent{
		WorkflowID:        final[0].WorkflowID,
		ApprovalRequestID: final[0].ID,
		ModuleName:        final[0].ModuleName,
		ServiceName:       final[0].ServiceName,
		Status:            final[0].Status,
		Completed:         complete,
		OccurredAt:        now,
	})
	if complete {
		m.notifier.NotifyWorkflowDecided(ctx, &final[len(final)-1], StatusApproved, "自动批准")
	}
	for i := range final {
		if final[i].Status == StatusPending {
			m.notifier.NotifyPendingApproval(ctx, &final[i])
		}
	}

	m.logger.Info("审批链已创建",
		zap.String("workflowId", final[0].WorkflowID),
		zap.String("module", in.ModuleName),
		zap.String("service", in.ServiceName),
		zap.Int("levels", len(final)),
	)
	return final, nil
}

// buildChain 按配置顺序构建审批链（不落库）
func (m *Manager) buildChain(ctx context.Context, cfg *ServiceApprovalConfig, in *RequestInput) ([]ApprovalRequest, error) {
	workflowID := uuid.New().String()
	now := time.Now().UTC()

	var chain []ApprovalRequest
	for _, spec := range cfg.ApprovalLevels {
		required := spec.Required
		if !required && len(spec.RequiredFor) > 0 {
			cond, err := ParseCondition(spec.RequiredFor)
			if err != nil {
				return nil, err
			}
			required = Evaluate(cond, in.RequestData)
		}
		if !required {
			// 被跳过的级别在 level_order 上留下空洞，链的遍历顺序由
			// next_level_id 指针决定，与序号是否连续无关
			continue
		}

		approvers, err := m.resolveApprovers(ctx, &spec)
		if err != nil {
			return nil, err
		}
		if len(approvers) == 0 {
			// 没有审批人意味着空链放行，这里选择大声失败
			return nil, NewConfigurationError("级别 %s 没有可用审批人", spec.Level)
		}

		timeout := spec.TimeoutHours
		if timeout <= 0 {
			timeout = cfg.DefaultTimeoutHours
		}
		due := now.Add(time.Duration(timeout) * time.Hour)

		chain = append(chain, ApprovalRequest{
			ID:                uuid.New().String(),
			ServiceRequestID:  in.ServiceRequestID,
			ModuleName:        in.ModuleName,
			ServiceName:       in.ServiceName,
			RequesterID:       in.RequesterID,
			WorkflowID:        workflowID,
			ApprovalLevel:     spec.Level,
			LevelOrder:        spec.Level.Order(),
			Status:            StatusWaiting,
			CurrentApproverID: approvers[0],
			RequestData:       datatypes.JSONMap(in.RequestData),
			Justification:     in.Justification,
			DueDate:           &due,
		})
	}

	if len(chain) == 0 {
		return nil, nil
	}

	// 链接 next_level_id，首级激活为 pending，末级标记 is_final_level
	for i := range chain {
		if i+1 < len(chain) {
			next := chain[i+1].ID
			chain[i].NextLevelID = &next
		}
	}
	chain[0].Status = StatusPending
	chain[len(chain)-1].IsFinalLevel = true
	return chain, nil
}

// resolveApprovers 合并直接指定的审批人与按角色解析出的审批人
func (m *Manager) resolveApprovers(ctx context.Context, spec *LevelSpec) ([]string, error) {
	approvers := make([]string, 0, len(spec.ApproverIDs))
	seen := make(map[string]struct{})
	for _, id := range spec.ApproverIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		approvers = append(approvers, id)
	}

	if len(spec.ApproverRoles) > 0 {
		resolved, err := m.resolver.ResolveRoles(ctx, spec.ApproverRoles)
		if err != nil {
			return nil, fmt.Errorf("解析审批角色失败: %w", err)
		}
		for _, id := range resolved {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			approvers = append(approvers, id)
		}
	}
	return approvers, nil
}

// applyAutoDecisions 在链创建事务内执行自动批准表达式。
// 从链头开始，表达式命中的级别直接记为批准并激活下一级。
func (m *Manager) applyAutoDecisions(ctx context.Context, tx *gorm.DB, cfg *ServiceApprovalConfig, chain []ApprovalRequest, now time.Time) error {
	exprs := make(map[ApprovalLevel]string, len(cfg.ApprovalLevels))
	for _, spec := range cfg.ApprovalLevels {
		if spec.AutoApproveExpr != "" {
			exprs[spec.Level] = spec.AutoApproveExpr
		}
	}
	if len(exprs) == 0 {
		return nil
	}

	for i := range chain {
		expr, ok := exprs[chain[i].ApprovalLevel]
		if !ok {
			return nil
		}
		matched, err := EvaluateExpression(expr, map[string]any(chain[i].RequestData))
		if err != nil {
			m.logger.Warn("自动批准表达式评估失败",
				zap.String("workflowId", chain[i].WorkflowID),
				zap.String("level", string(chain[i].ApprovalLevel)),
				zap.Error(err),
			)
			return nil
		}
		if !matched {
			return nil
		}

		updates := map[string]any{
			"status":            StatusApproved,
			"approved_at":       now,
			"approver_comments": "自动批准",
			"version":           gorm.Expr("version + 1"),
			"updated_at":        now,
		}
		if err := tx.Model(&ApprovalRequest{}).Where("id = ?", chain[i].ID).Updates(updates).Error; err != nil {
			return wrapStorage("自动批准", err)
		}
		entry := historyEntry(&chain[i], ActionAutoApproved, "system", "", "", map[string]any{
			"expression": expr,
		})
		if err := m.audit.log(ctx, tx, entry); err != nil {
			return err
		}
		metrics.ApprovalPendingGauge.WithLabelValues(chain[i].ModuleName).Dec()
		metrics.ApprovalDecisionsTotal.WithLabelValues(chain[i].ModuleName, string(StatusApproved), "auto").Inc()

		if i+1 < len(chain) {
			if err := m.activateLevel(ctx, tx, &chain[i+1], now); err != nil {
				return err
			}
		}
	}
	return nil
}

// activateLevel 把 waiting 级别激活为 pending 并记录历史
func (m *Manager) activateLevel(ctx context.Context, tx *gorm.DB, next *ApprovalRequest, now time.Time) error {
	result := tx.Model(&ApprovalRequest{}).
		Where("id = ? AND status = ?", next.ID, StatusWaiting).
		Updates(map[string]any{
			"status":     StatusPending,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return wrapStorage("激活下一审批级别", result.Error)
	}
	if result.RowsAffected == 0 {
		// 已被并发取消/拒绝，激活作废
		return nil
	}
	metrics.ApprovalPendingGauge.WithLabelValues(next.ModuleName).Inc()
	return m.audit.log(ctx, tx, historyEntry(next, ActionEscalatedToNext, "system", "", "", nil))
}

// ApproveRequest 批准一条审批请求。
// 返回 true 当且仅当整条链再无存活级别（链完全批准）。
// 本方法不触发被审批的业务操作，只报告完成状态。
func (m *Manager) ApproveRequest(ctx context.Context, approvalRequestID, approverID, comments string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "approval.ApproveRequest",
		trace.WithAttributes(attribute.String("approvalRequestId", approvalRequestID)))
	defer span.End()

	var (
		req      ApprovalRequest
		complete bool
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.loadForDecision(ctx, tx, approvalRequestID, approverID, &req); err != nil {
			return err
		}

		now := time.Now().UTC()
		result := tx.Model(&ApprovalRequest{}).
			Where("id = ? AND version = ?", req.ID, req.Version).
			Updates(map[string]any{
				"status":            StatusApproved,
				"approved_at":       now,
				"approver_comments": comments,
				"version":           req.Version + 1,
				"updated_at":        now,
			})
		if result.Error != nil {
			return wrapStorage("批准审批请求", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if err := m.audit.log(ctx, tx, historyEntry(&req, ActionApproved, approverID, comments, "", nil)); err != nil {
			return err
		}

		if req.NextLevelID != nil {
			var next ApprovalRequest
			if err := tx.Where("id = ?", *req.NextLevelID).First(&next).Error; err != nil {
				return wrapStorage("查询下一审批级别", err)
			}
			if err := m.activateLevel(ctx, tx, &next, now); err != nil {
				return err
			}
		}

		var live int64
		if err := tx.Model(&ApprovalRequest{}).
			Where("workflow_id = ? AND status IN ?", req.WorkflowID,
				[]ApprovalStatus{StatusWaiting, StatusPending, StatusEscalated}).
			Count(&live).Error; err != nil {
			return wrapStorage("统计存活级别", err)
		}
		complete = live == 0
		return nil
	})
	if err != nil {
		return false, err
	}

	metrics.ApprovalPendingGauge.WithLabelValues(req.ModuleName).Dec()
	metrics.ApprovalDecisionsTotal.WithLabelValues(req.ModuleName, string(StatusApproved), "manual").Inc()
	metrics.ApprovalDurationHours.WithLabelValues(req.ModuleName).
		Observe(time.Since(req.CreatedAt).Hours())
	m.publishEvent(WorkflowEvent{
		WorkflowID:        req.WorkflowID,
		ApprovalRequestID: req.ID,
		ModuleName:        req.ModuleName,
		ServiceName:       req.ServiceName,
		Status:            StatusApproved,
		ActorID:           approverID,
		Comments:          comments,
		Completed:         complete,
	})
	if complete {
		m.notifier.NotifyWorkflowDecided(ctx, &req, StatusApproved, comments)
	} else if req.NextLevelID != nil {
		if next, err := m.GetRequest(ctx, *req.NextLevelID); err == nil && next.Status == StatusPending {
			m.notifier.NotifyPendingApproval(ctx, next)
		}
	}

	m.logger.Info("审批请求已批准",
		zap.String("approvalRequestId", req.ID),
		zap.String("workflowId", req.WorkflowID),
		zap.Bool("workflowComplete", complete),
	)
	return complete, nil
}

// RejectRequest 拒绝一条审批请求并向整条链级联。
// 拒绝总是终结工作流，固定返回 true。
func (m *Manager) RejectRequest(ctx context.Context, approvalRequestID, approverID, reason string) (bool, error) {
	ctx, span := m.tracer.Start(ctx, "approval.RejectRequest",
		trace.WithAttributes(attribute.String("approvalRequestId", approvalRequestID)))
	defer span.End()

	var req ApprovalRequest
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.loadForDecision(ctx, tx, approvalRequestID, approverID, &req); err != nil {
			return err
		}

		now := time.Now().UTC()
		result := tx.Model(&ApprovalRequest{}).
			Where("id = ? AND version = ?", req.ID, req.Version).
			Updates(map[string]any{
				"status":           StatusRejected,
				"rejection_reason": reason,
				"version":          req.Version + 1,
				"updated_at":       now,
			})
		if result.Error != nil {
			return wrapStorage("拒绝审批请求", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrVersionConflict
		}

		if err := m.audit.log(ctx, tx, historyEntry(&req, ActionRejected, approverID, "", reason, nil)); err != nil {
			return err
		}

		// 向前传播失败：链上所有未终结的级别一并拒绝，每行写历史
		return m.cascade(ctx, tx, req.WorkflowID, req.ID, StatusRejected, ActionRejectedCascade, approverID, reason, now)
	})
	if err != nil {
		return false, err
	}

	metrics.ApprovalPendingGauge.WithLabelValues(req.ModuleName).Dec()
	metrics.ApprovalDecisionsTotal.WithLabelValues(req.ModuleName, string(StatusRejected), "manual").Inc()
	m.publishEvent(WorkflowEvent{
		WorkflowID:        req.WorkflowID,
		ApprovalRequestID: req.ID,
		ModuleName:        req.ModuleName,
		ServiceName:       req.ServiceName,
		Status:            StatusRejected,
		ActorID:           approverID,
		Comments:          reason,
		Completed:         true,
	})
	m.notifier.NotifyWorkflowDecided(ctx, &req, StatusRejected, reason)

	m.logger.Info("审批请求已拒绝",
		zap.String("approvalRequestId", req.ID),
		zap.String("workflowId", req.WorkflowID),
	)
	return true, nil
}

// cascade 把链上所有未终结的兄弟级别统一推进到目标终态，逐行写历史。
// 重复执行是空操作。
func (m *Manager) cascade(ctx context.Context, tx *gorm.DB, workflowID, excludeID string, status ApprovalStatus, action, actorID, reason string, now time.Time) error {
	var siblings []ApprovalRequest
	if err := tx.Where("workflow_id = ? AND id <> ? AND status IN ?", workflowID, excludeID,
		[]ApprovalStatus{StatusWaiting, StatusPending, StatusEscalated}).
		Find(&siblings).Error; err != nil {
		return wrapStorage("查询链上兄弟级别", err)
	}

	for i := range siblings {
		updates := map[string]any{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		}
		if status == StatusRejected {
			updates["rejection_reason"] = reason
		}
		if err := tx.Model(&ApprovalRequest{}).Where("id = ?", siblings[i].ID).Updates(updates).Error; err != nil {
			return wrapStorage("级联更新", err)
		}
		if err := m.audit.log(ctx, tx, historyEntry(&siblings[i], action, actorID, "", reason, nil)); err != nil {
			return err
		}
		if siblings[i].Status.Live() {
			metrics.ApprovalPendingGauge.WithLabelValues(siblings[i].ModuleName).Dec()
		}
	}
	return nil
}

// CancelWorkflow 取消整条审批链。取消是状态而不是删除。
func (m *Manager) CancelWorkflow(ctx context.Context, workflowID, actorID, reason string) error {
	ctx, span := m.tracer.Start(ctx, "approval.CancelWorkflow",
		trace.WithAttributes(attribute.String("workflowId", workflowID)))
	defer span.End()

	var found int64
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ApprovalRequest{}).
			Where("workflow_id = ?", workflowID).
			Count(&found).Error; err != nil {
			return wrapStorage("查询审批链", err)
		}
		if found == 0 {
			return ErrNotFound
		}
		now := time.Now().UTC()
		return m.cascade(ctx, tx, workflowID, "", StatusCancelled, ActionCancelled, actorID, reason, now)
	})
	if err != nil {
		return err
	}

	m.publishEvent(WorkflowEvent{
		WorkflowID: workflowID,
		Status:     StatusCancelled,
		ActorID:    actorID,
		Comments:   reason,
		Completed:  true,
	})
	return nil
}

// GetPendingApprovals 查询某审批人名下待处理的请求
func (m *Manager) GetPendingApprovals(ctx context.Context, approverID string) ([]ApprovalRequest, error) {
	var requests []ApprovalRequest
	err := m.db.WithContext(ctx).
		Where("current_approver_id = ? AND status IN ?", approverID,
			[]ApprovalStatus{StatusPending, StatusEscalated}).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, wrapStorage("查询待审批请求", err)
	}
	return requests, nil
}

// GetWorkflow 按级别顺序返回整条审批链
func (m *Manager) GetWorkflow(ctx context.Context, workflowID string) ([]ApprovalRequest, error) {
	var requests []ApprovalRequest
	err := m.db.WithContext(ctx).
		Scopes(common.ByWorkflow(workflowID)).
		Order("level_order ASC").
		Find(&requests).Error
	if err != nil {
		return nil, wrapStorage("查询审批链", err)
	}
	return requests, nil
}

// GetRequest 按 ID 查询单条审批请求
func (m *Manager) GetRequest(ctx context.Context, approvalRequestID string) (*ApprovalRequest, error) {
	var req ApprovalRequest
	err := m.db.WithContext(ctx).Where("id = ?", approvalRequestID).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapStorage("查询审批请求", err)
	}
	return &req, nil
}

// HardDeleteTerminalRequest 管理员硬删除终态请求。
// 核心流程永不删除，这是独立的、显式审计的管理操作；
// 删除前在历史里留下 hard_deleted 记录。
func (m *Manager) HardDeleteTerminalRequest(ctx context.Context, approvalRequestID, actorID string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req ApprovalRequest
		if err := tx.Where("id = ?", approvalRequestID).First(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return wrapStorage("查询审批请求", err)
		}
		if !req.Status.Terminal() {
			return ErrAlreadyDecided
		}
		if err := m.audit.log(ctx, tx, historyEntry(&req, ActionHardDeleted, actorID, "", "", map[string]any{
			"status": string(req.Status),
		})); err != nil {
			return err
		}
		if err := tx.Delete(&ApprovalRequest{}, "id = ?", req.ID).Error; err != nil {
			return wrapStorage("删除审批请求", err)
		}
		return nil
	})
}

// loadForDecision 加载请求并做授权与状态前置检查。
// 授权失败优先于状态检查，且不产生任何状态变更或历史记录。
func (m *Manager) loadForDecision(ctx context.Context, tx *gorm.DB, approvalRequestID, approverID string, out *ApprovalRequest) error {
	if err := tx.Where("id = ?", approvalRequestID).First(out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return wrapStorage("查询审批请求", err)
	}
	if out.CurrentApproverID != approverID {
		return ErrAuthorization
	}
	if out.Status == StatusWaiting {
		return ErrNotYetActive
	}
	if !out.Status.Live() {
		return ErrAlreadyDecided
	}
	return nil
}

func (m *Manager) publishEvent(evt WorkflowEvent) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(evt)
}
