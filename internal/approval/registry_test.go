package approval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigureServiceApprovalValidation(t *testing.T) {
	db := openApprovalTestDB(t)
	registry := NewConfigRegistry(db)
	ctx := context.Background()

	cases := []struct {
		name  string
		input *ConfigInput
	}{
		{
			name:  "missing names",
			input: &ConfigInput{ApprovalLevels: []LevelSpec{{Level: Level1, ApproverIDs: []string{"a"}}}},
		},
		{
			name:  "empty levels",
			input: &ConfigInput{ModuleName: "m", ServiceName: "s"},
		},
		{
			name: "invalid level",
			input: &ConfigInput{ModuleName: "m", ServiceName: "s",
				ApprovalLevels: []LevelSpec{{Level: "level_9", ApproverIDs: []string{"a"}}}},
		},
		{
			name: "duplicate level",
			input: &ConfigInput{ModuleName: "m", ServiceName: "s",
				ApprovalLevels: []LevelSpec{
					{Level: Level1, ApproverIDs: []string{"a"}},
					{Level: Level1, ApproverIDs: []string{"b"}},
				}},
		},
		{
			name: "level without approvers",
			input: &ConfigInput{ModuleName: "m", ServiceName: "s",
				ApprovalLevels: []LevelSpec{{Level: Level1}}},
		},
		{
			name: "bad condition operator",
			input: &ConfigInput{ModuleName: "m", ServiceName: "s",
				ApprovalLevels:     []LevelSpec{{Level: Level1, ApproverIDs: []string{"a"}}},
				ApprovalConditions: map[string]any{"amount": map[string]any{"between": 1}}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.ConfigureServiceApproval(ctx, tc.input)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestConfigureServiceApprovalUpsert(t *testing.T) {
	db := openApprovalTestDB(t)
	registry := NewConfigRegistry(db)
	ctx := context.Background()

	first, err := registry.ConfigureServiceApproval(ctx, &ConfigInput{
		ModuleName:  "urbanismo",
		ServiceName: "LicencaConstrucao",
		ApprovalLevels: []LevelSpec{
			{Level: Level1, ApproverIDs: []string{"tech-1"}, Required: true},
		},
	})
	require.NoError(t, err)
	require.True(t, first.RequiresApproval)
	require.Equal(t, 48, first.DefaultTimeoutHours)
	require.Equal(t, 24, first.EscalationTimeoutHours)

	require.NoError(t, registry.DisableConfig(ctx, "urbanismo", "LicencaConstrucao"))

	disabled, err := registry.GetConfig(ctx, "urbanismo", "LicencaConstrucao")
	require.NoError(t, err)
	require.False(t, disabled.RequiresApproval)

	// 重新配置会复用同一条记录并再次启用
	second, err := registry.ConfigureServiceApproval(ctx, &ConfigInput{
		ModuleName:  "urbanismo",
		ServiceName: "LicencaConstrucao",
		ApprovalLevels: []LevelSpec{
			{Level: Level1, ApproverIDs: []string{"tech-1"}, Required: true},
			{Level: Level2, ApproverIDs: []string{"director-1"}, Required: true},
		},
		DefaultTimeoutHours: 72,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.True(t, second.RequiresApproval)
	require.Len(t, second.ApprovalLevels, 2)
	require.Equal(t, 72, second.DefaultTimeoutHours)

	var count int64
	require.NoError(t, db.Model(&ServiceApprovalConfig{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestDisableConfigNotFound(t *testing.T) {
	db := openApprovalTestDB(t)
	registry := NewConfigRegistry(db)

	err := registry.DisableConfig(context.Background(), "nope", "nada")
	require.ErrorIs(t, err, ErrConfigurationNotFound)
}

func TestListConfigsFilterByModule(t *testing.T) {
	db := openApprovalTestDB(t)
	registry := NewConfigRegistry(db)
	ctx := context.Background()

	for _, pair := range [][2]string{{"finance", "MicroCredito"}, {"finance", "Subsidio"}, {"urbanismo", "Licenca"}} {
		_, err := registry.ConfigureServiceApproval(ctx, &ConfigInput{
			ModuleName:  pair[0],
			ServiceName: pair[1],
			ApprovalLevels: []LevelSpec{
				{Level: Level1, ApproverIDs: []string{"a"}, Required: true},
			},
		})
		require.NoError(t, err)
	}

	all, err := registry.ListConfigs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	finance, err := registry.ListConfigs(ctx, "finance")
	require.NoError(t, err)
	require.Len(t, finance, 2)
}

func TestLoadSeedFile(t *testing.T) {
	db := openApprovalTestDB(t)
	registry := NewConfigRegistry(db)
	ctx := context.Background()

	seed := `configs:
  - module_name: finance
    service_name: MicroCredito
    approval_levels:
      - level: level_1
        approver_ids: ["officer-1"]
        required: true
    default_timeout_hours: 48
`
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	count, err := registry.LoadSeedFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	cfg, err := registry.GetConfig(ctx, "finance", "MicroCredito")
	require.NoError(t, err)
	require.Len(t, cfg.ApprovalLevels, 1)
	require.Equal(t, Level1, cfg.ApprovalLevels[0].Level)

	// 文件不存在时静默跳过
	count, err = registry.LoadSeedFile(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Zero(t, count)
}
