package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetApprovalMetricsEmptyDatabase(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, _ := newTestManager(t, db)

	m, err := mgr.GetApprovalMetrics(context.Background())
	require.NoError(t, err)
	require.Zero(t, m.TotalRequests)
	require.Zero(t, m.ApprovalRate)
	require.Zero(t, m.AvgApprovalHours)
	require.Zero(t, m.ServicesRequiringApprovalPct)
}

func TestGetApprovalMetricsAggregation(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	approved, err := mgr.RequestApproval(ctx, creditInput(20000))
	require.NoError(t, err)
	_, err = mgr.ApproveRequest(ctx, approved[0].ID, "officer-1", "ok")
	require.NoError(t, err)

	rejected, err := mgr.RequestApproval(ctx, creditInput(30000))
	require.NoError(t, err)
	_, err = mgr.RejectRequest(ctx, rejected[0].ID, "officer-1", "não")
	require.NoError(t, err)

	_, err = mgr.RequestApproval(ctx, creditInput(40000))
	require.NoError(t, err)

	m, err := mgr.GetApprovalMetrics(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, m.TotalRequests)
	require.EqualValues(t, 1, m.ApprovedCount)
	require.EqualValues(t, 1, m.RejectedCount)
	require.EqualValues(t, 1, m.PendingCount)
	require.InDelta(t, 0.5, m.ApprovalRate, 1e-9)
	require.InDelta(t, 100.0, m.ServicesRequiringApprovalPct, 1e-9)
}

func TestGetApprovalMetricsDisabledConfigLowersPct(t *testing.T) {
	db := openApprovalTestDB(t)
	mgr, registry := newTestManager(t, db)
	seedFinanceConfig(t, registry)
	ctx := context.Background()

	_, err := registry.ConfigureServiceApproval(ctx, &ConfigInput{
		ModuleName:  "comercio",
		ServiceName: "Alvara",
		ApprovalLevels: []LevelSpec{
			{Level: Level1, ApproverIDs: []string{"a"}, Required: true},
		},
	})
	require.NoError(t, err)
	require.NoError(t, registry.DisableConfig(ctx, "comercio", "Alvara"))

	m, err := mgr.GetApprovalMetrics(ctx)
	require.NoError(t, err)
	require.InDelta(t, 50.0, m.ServicesRequiringApprovalPct, 1e-9)
}
