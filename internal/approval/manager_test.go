package approval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/silahbo-jpg/sila-system-sub000/internal/metrics"
)

func openApprovalTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:approval_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ServiceApprovalConfig{},
		&ApprovalRequest{},
		&ApprovalHistory{},
	))
	return db
}

func newTestManager(t *testing.T, db *gorm.DB, opts ...ManagerOption) (*Manager, *ConfigRegistry) {
	t.Helper()
	registry := NewConfigRegistry(db)
	resolver := NewStaticRoleResolver(map[string][]string{
		"finance_officer":  {"officer-1"},
		"finance_director": {"director-1"},
	})
	opts = append([]ManagerOption{WithRoleResolver(resolver)}, opts...)
	return NewManager(db, registry, opts...), registry
}

func seedFinanceConfig(t *testing.T, registry *ConfigRegistry) {
	t.Helper()
	_, err := registry.ConfigureServiceApproval(context.Background(), &ConfigInput{
		ModuleName:  "finance",
		ServiceName: "MicroCredito",
		ApprovalLevels: []LevelSpec{
			{
				Level:         Level1,
				ApproverRoles: []string{"finance_officer"},
				RequiredFor:   map[string]any{"amount": map[string]any{"gt": 10000}},
			},
			{
				Level:         Level2,
				ApproverRoles: []string{"finance_director"},
				RequiredFor:   map[string]any{"amount": map[string]any{"gt": 50000}},
			},
		},
		ApprovalConditions:  map[string]any{"amount": map[string]any{"gt": 10000}},
		DefaultTimeoutHours: 48,
	})
	require.NoError(t, err)
}

func creditInput(amount float64) *RequestInput {
	return &RequestInput{
		ServiceRequestID: uuid.NewString(),
		ModuleName:       "finance",
		ServiceName:      "MicroCredito",
		RequesterID:      "citizen-1",
		RequestData:      map[string]any{"amount": amount},
		Justification:    "pedido de microcrédito",
	}
}

func TestRequestApprovalWithoutConfig(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, _ := newTestManager(t, db)

	_, err := mgr.RequestApproval(context.Background(), creditInput(100))
	require.ErrorIs(t, err, ErrConfigurationNotFound)
}

func TestRequestApprovalBelowThreshold(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)

	chain, err := mgr.RequestApproval(context.Background(), creditInput(5000))
	require.NoError(t, err)
	require.Empty(t, chain)

	var count int64
	require.NoError(t, db.Model(&ApprovalRequest{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRequestApprovalSingleLevel(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)

	chain, err := mgr.RequestApproval(context.Background(), creditInput(20000))
	require.NoError(t, err)
	require.Len(t, chain, 1)

	req := chain[0]
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, Level1, req.ApprovalLevel)
	require.Equal(t, "officer-1", req.CurrentApproverID)
	require.True(t, req.IsFinalLevel)
	require.Nil(t, req.NextLevelID)
	require.NotNil(t, req.DueDate)

	history, err := mgr.GetHistory(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, ActionRequestCreated, history[0].Action)
	require.Equal(t, "citizen-1", history[0].ActorID)
}

func TestRequestApprovalTwoLevelsLinked(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)

	chain, err := mgr.RequestApproval(context.Background(), creditInput(60000))
	require.NoError(t, err)
	require.Len(t, chain, 2)

	first, second := chain[0], chain[1]
	require.Equal(t, StatusPending, first.Status)
	require.Equal(t, StatusWaiting, second.Status)
	require.Equal(t, first.WorkflowID, second.WorkflowID)
	require.NotNil(t, first.NextLevelID)
	require.Equal(t, second.ID, *first.NextLevelID)
	require.False(t, first.IsFinalLevel)
	require.True(t, second.IsFinalLevel)
	require.Equal(t, "director-1", second.CurrentApproverID)
}

func TestApproveSequence(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(60000))
	require.NoError(t, err)
	require.Len(t, chain, 2)

	complete, err := mgr.ApproveRequest(ctx, chain[0].ID, "officer-1", "conforme")
	require.NoError(t, err)
	require.False(t, complete)

	second, err := mgr.GetRequest(ctx, chain[1].ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, second.Status)

	complete, err = mgr.ApproveRequest(ctx, chain[1].ID, "director-1", "aprovado")
	require.NoError(t, err)
	require.True(t, complete)

	first, err := mgr.GetRequest(ctx, chain[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, first.Status)
	require.NotNil(t, first.ApprovedAt)
	require.Equal(t, "conforme", first.ApproverComments)
	require.Equal(t, 1, first.Version)
}

func TestApproveByWrongApproverLeavesNoTrace(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(20000))
	require.NoError(t, err)

	before, err := mgr.GetHistory(ctx, chain[0].ID)
	require.NoError(t, err)

	_, err = mgr.ApproveRequest(ctx, chain[0].ID, "intruder", "")
	require.ErrorIs(t, err, ErrAuthorization)

	req, err := mgr.GetRequest(ctx, chain[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, 0, req.Version)

	after, err := mgr.GetHistory(ctx, chain[0].ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
}

func TestApproveAlreadyDecided(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(20000))
	require.NoError(t, err)

	_, err = mgr.ApproveRequest(ctx, chain[0].ID, "officer-1", "")
	require.NoError(t, err)

	_, err = mgr.ApproveRequest(ctx, chain[0].ID, "officer-1", "")
	require.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestApproveUnknownRequest(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, _ := newTestManager(t, db)

	_, err := mgr.ApproveRequest(context.Background(), uuid.NewString(), "officer-1", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRejectCascadesToSiblings(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(60000))
	require.NoError(t, err)
	require.Len(t, chain, 2)

	complete, err := mgr.RejectRequest(ctx, chain[0].ID, "officer-1", "documentação insuficiente")
	require.NoError(t, err)
	require.True(t, complete)

	first, err := mgr.GetRequest(ctx, chain[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, first.Status)
	require.Equal(t, "documentação insuficiente", first.RejectionReason)

	second, err := mgr.GetRequest(ctx, chain[1].ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, second.Status)

	history, err := mgr.GetWorkflowHistory(ctx, first.WorkflowID)
	require.NoError(t, err)
	actions := make(map[string]int)
	for _, h := range history {
		actions[h.Action]++
	}
	require.Equal(t, 1, actions[ActionRejected])
	require.Equal(t, 1, actions[ActionRejectedCascade])
}

func TestCancelWorkflow(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(60000))
	require.NoError(t, err)

	require.NoError(t, mgr.CancelWorkflow(ctx, chain[0].WorkflowID, "citizen-1", "desistência"))

	workflow, err := mgr.GetWorkflow(ctx, chain[0].WorkflowID)
	require.NoError(t, err)
	for _, req := range workflow {
		require.Equal(t, StatusCancelled, req.Status)
	}

	require.ErrorIs(t, mgr.CancelWorkflow(ctx, uuid.NewString(), "citizen-1", ""), ErrNotFound)
}

func TestGetPendingApprovals(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	_, err := mgr.RequestApproval(ctx, creditInput(20000))
	require.NoError(t, err)
	_, err = mgr.RequestApproval(ctx, creditInput(60000))
	require.NoError(t, err)

	pending, err := mgr.GetPendingApprovals(ctx, "officer-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// 第二级还在 waiting，不在主管名下
	pending, err = mgr.GetPendingApprovals(ctx, "director-1")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestAutoApproveExpression(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	ctx := context.Background()

	_, err := registry.ConfigureServiceApproval(ctx, &ConfigInput{
		ModuleName:  "comercio",
		ServiceName: "AlvaraComercial",
		ApprovalLevels: []LevelSpec{
			{
				Level:           Level1,
				ApproverIDs:     []string{"clerk-1"},
				Required:        true,
				AutoApproveExpr: "{{amount}} <= 500",
			},
		},
	})
	require.NoError(t, err)

	chain, err := mgr.RequestApproval(ctx, &RequestInput{
		ServiceRequestID: uuid.NewString(),
		ModuleName:       "comercio",
		ServiceName:      "AlvaraComercial",
		RequesterID:      "citizen-2",
		RequestData:      map[string]any{"amount": 300},
	})
	require.NoError(t, err)
	require.Len(t, chain, 1)
	require.Equal(t, StatusApproved, chain[0].Status)

	history, err := mgr.GetHistory(ctx, chain[0].ID)
	require.NoError(t, err)
	var autoApproved bool
	for _, h := range history {
		if h.Action == ActionAutoApproved {
			autoApproved = true
			require.Equal(t, "system", h.ActorID)
		}
	}
	require.True(t, autoApproved)
}

func TestApprovePublishesWorkflowEvent(t *testing.T) {
	db := openApprovalTestDB(t)
	bus := NewEventBus(&EventBusConfig{BufferSize: 4})
	mgr, registry := newTestManager(t, db, WithEventBus(bus))
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(20000))
	require.NoError(t, err)

	ch, cancel := bus.Subscribe(chain[0].WorkflowID)
	defer cancel()

	_, err = mgr.ApproveRequest(ctx, chain[0].ID, "officer-1", "ok")
	require.NoError(t, err)

	select {
	case evt := <-ch:
		require.Equal(t, StatusApproved, evt.Status)
		require.Equal(t, "officer-1", evt.ActorID)
		require.True(t, evt.Completed)
	case <-time.After(time.Second):
		t.Fatal("workflow event not received")
	}
}

func TestHardDeleteTerminalRequest(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(20000))
	require.NoError(t, err)

	// 存活状态不允许硬删除
	require.ErrorIs(t, mgr.HardDeleteTerminalRequest(ctx, chain[0].ID, "admin-1"), ErrAlreadyDecided)

	_, err = mgr.RejectRequest(ctx, chain[0].ID, "officer-1", "inválido")
	require.NoError(t, err)

	require.NoError(t, mgr.HardDeleteTerminalRequest(ctx, chain[0].ID, "admin-1"))

	_, err = mgr.GetRequest(ctx, chain[0].ID)
	require.ErrorIs(t, err, ErrNotFound)

	// 历史保留删除痕迹
	history, err := mgr.GetHistory(ctx, chain[0].ID)
	require.NoError(t, err)
	var deleted bool
	for _, h := range history {
		if h.Action == ActionHardDeleted {
			deleted = true
			require.Equal(t, "admin-1", h.ActorID)
		}
	}
	require.True(t, deleted)
}

// recordingNotifier 记录通知调用，便于断言
type recordingNotifier struct {
	pending []string
	decided []ApprovalStatus
}

func (n *recordingNotifier) NotifyPendingApproval(_ context.Context, req *ApprovalRequest) {
	n.pending = append(n.pending, req.ID)
}

func (n *recordingNotifier) NotifyWorkflowDecided(_ context.Context, _ *ApprovalRequest, status ApprovalStatus, _ string) {
	n.decided = append(n.decided, status)
}

func seedHousingConfig(t *testing.T, registry *ConfigRegistry) {
	t.Helper()
	_, err := registry.ConfigureServiceApproval(context.Background(), &ConfigInput{
		ModuleName:  "habitacao",
		ServiceName: "CedenciaTerreno",
		ApprovalLevels: []LevelSpec{
			{Level: Level1, ApproverIDs: []string{"tecnico-1"}, Required: true},
			{Level: Level2, ApproverIDs: []string{"chefe-1"}, Required: true},
		},
	})
	require.NoError(t, err)
}

func housingInput() *RequestInput {
	return &RequestInput{
		ServiceRequestID: uuid.NewString(),
		ModuleName:       "habitacao",
		ServiceName:      "CedenciaTerreno",
		RequesterID:      "citizen-4",
		RequestData:      map[string]any{"area_m2": 250},
	}
}

func TestPendingGaugeStaysBalanced(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedHousingConfig(t, registry)
	ctx := context.Background()

	gauge := metrics.ApprovalPendingGauge.WithLabelValues("habitacao")
	start := testutil.ToFloat64(gauge)

	chain, err := mgr.RequestApproval(ctx, housingInput())
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, start+1, testutil.ToFloat64(gauge))

	complete, err := mgr.ApproveRequest(ctx, chain[0].ID, "tecnico-1", "")
	require.NoError(t, err)
	require.False(t, complete)
	// 第一级出局、第二级入场，净值不变
	require.Equal(t, start+1, testutil.ToFloat64(gauge))

	complete, err = mgr.ApproveRequest(ctx, chain[1].ID, "chefe-1", "")
	require.NoError(t, err)
	require.True(t, complete)
	require.Equal(t, start, testutil.ToFloat64(gauge))
}

func TestPendingGaugeAfterRejectCascade(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedHousingConfig(t, registry)
	ctx := context.Background()

	gauge := metrics.ApprovalPendingGauge.WithLabelValues("habitacao")
	start := testutil.ToFloat64(gauge)

	chain, err := mgr.RequestApproval(ctx, housingInput())
	require.NoError(t, err)
	require.Len(t, chain, 2)

	_, err = mgr.RejectRequest(ctx, chain[0].ID, "tecnico-1", "documentação em falta")
	require.NoError(t, err)
	// 第二级还在 waiting、从未入场，级联不会重复扣减
	require.Equal(t, start, testutil.ToFloat64(gauge))
}

func TestFullyAutoApprovedChainCompletes(t *testing.T) {
	db := openApprovalTestDB(t)
	notifier := &recordingNotifier{}
	mgr, registry := newTestManager(t, db, WithNotifier(notifier))
	ctx := context.Background()

	_, err := registry.ConfigureServiceApproval(ctx, &ConfigInput{
		ModuleName:  "comercio",
		ServiceName: "RenovacaoAlvara",
		ApprovalLevels: []LevelSpec{
			{Level: Level1, ApproverIDs: []string{"clerk-1"}, Required: true, AutoApproveExpr: "{{amount}} <= 500"},
			{Level: Level2, ApproverIDs: []string{"chief-1"}, Required: true, AutoApproveExpr: "{{amount}} <= 500"},
		},
	})
	require.NoError(t, err)

	gauge := metrics.ApprovalPendingGauge.WithLabelValues("comercio")
	start := testutil.ToFloat64(gauge)

	chain, err := mgr.RequestApproval(ctx, &RequestInput{
		ServiceRequestID: uuid.NewString(),
		ModuleName:       "comercio",
		ServiceName:      "RenovacaoAlvara",
		RequesterID:      "citizen-5",
		RequestData:      map[string]any{"amount": 300},
	})
	require.NoError(t, err)
	require.Len(t, chain, 2)
	for _, req := range chain {
		require.Equal(t, StatusApproved, req.Status)
	}

	// 没有任何级别留在待办，发起人直接收到终结通知
	require.Empty(t, notifier.pending)
	require.Equal(t, []ApprovalStatus{StatusApproved}, notifier.decided)
	require.Equal(t, start, testutil.ToFloat64(gauge))
}

func TestApproveWaitingLevelNotYetActive(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	chain, err := mgr.RequestApproval(ctx, creditInput(60000))
	require.NoError(t, err)
	require.Len(t, chain, 2)

	// 第二级审批人抢跑：级别还在 waiting，不是重复决定
	_, err = mgr.ApproveRequest(ctx, chain[1].ID, "director-1", "")
	require.ErrorIs(t, err, ErrNotYetActive)

	second, err := mgr.GetRequest(ctx, chain[1].ID)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, second.Status)

	history, err := mgr.GetHistory(ctx, chain[1].ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, ActionRequestCreated, history[0].Action)
}

func TestResolveApproversMergesAndDeduplicates(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, _ := newTestManager(t, db)

	approvers, err := mgr.resolveApprovers(context.Background(), &LevelSpec{
		ApproverIDs:   []string{"officer-1", "extra-1", "extra-1"},
		ApproverRoles: []string{"finance_officer", "finance_director"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"officer-1", "extra-1", "director-1"}, approvers)
}

func TestRequestApprovalFailsWithoutApprovers(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	ctx := context.Background()

	_, err := registry.ConfigureServiceApproval(ctx, &ConfigInput{
		ModuleName:  "saude",
		ServiceName: "LicencaClinica",
		ApprovalLevels: []LevelSpec{
			{Level: Level1, ApproverRoles: []string{"unknown_role"}, Required: true},
		},
	})
	require.NoError(t, err)

	_, err = mgr.RequestApproval(ctx, &RequestInput{
		ServiceRequestID: uuid.NewString(),
		ModuleName:       "saude",
		ServiceName:      "LicencaClinica",
		RequesterID:      "citizen-3",
		RequestData:      map[string]any{"amount": 1},
	})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	var count int64
	require.NoError(t, db.Model(&ApprovalRequest{}).Count(&count).Error)
	require.Zero(t, count)
}
