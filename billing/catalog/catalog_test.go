package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New([]Plan{
		{ID: "A", GrantsPrimaryFeature: true},
		{ID: "B", GrantsPrimaryFeature: true},
		{ID: "C", GrantsPrimaryFeature: false},
	})
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	for _, tt := range []struct {
		name       string
		plans      []Plan
		shouldFail bool
	}{
		{
			name:       "Empty catalog",
			shouldFail: true,
		},
		{
			name:       "No primary plan",
			plans:      []Plan{{ID: "C"}},
			shouldFail: true,
		},
		{
			name:       "Duplicate id",
			plans:      []Plan{{ID: "A", GrantsPrimaryFeature: true}, {ID: "A"}},
			shouldFail: true,
		},
		{
			name:       "Blank id",
			plans:      []Plan{{ID: " ", GrantsPrimaryFeature: true}},
			shouldFail: true,
		},
		{
			name:  "Aliased primary plans",
			plans: []Plan{{ID: "A", GrantsPrimaryFeature: true}, {ID: "B", GrantsPrimaryFeature: true}},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.plans)
			if tt.shouldFail != (err != nil) {
				if tt.shouldFail {
					t.Error("test should've failed")
				} else {
					t.Errorf("unexpected failure: %s", err)
				}
			}
		})
	}
}

func TestParse(t *testing.T) {
	c, err := Parse("A:true, B ,C:false")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, c.PrimaryPlans())
	assert.True(t, c.Known("C"))
	assert.False(t, c.GrantsPrimary("C"))
	assert.False(t, c.Known("D"))

	_, err = Parse("A:maybe")
	assert.Error(t, err)

	_, err = Parse("C:false")
	assert.ErrorIs(t, err, ErrNoPrimaryPlan)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans:
  - id: cplan_primary
    grants_primary_feature: true
  - id: cplan_primary_annual
    grants_primary_feature: true
  - id: cplan_newsletter
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cplan_primary", "cplan_primary_annual"}, c.PrimaryPlans())
	assert.Len(t, c.Plans(), 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	c := testCatalog(t)

	for _, tt := range []struct {
		name  string
		items []types.Item
		want  types.Entitlements
	}{
		{
			name: "No items",
		},
		{
			name:  "Only non-primary active",
			items: []types.Item{{PlanID: "C", Status: types.StatusActive}},
			want: types.Entitlements{
				HasAnySubscription: true,
				ActivePlans:        []string{"C"},
			},
		},
		{
			name: "Aliased plan grants primary",
			items: []types.Item{
				{PlanID: "C", Status: types.StatusActive},
				{PlanID: "B", Status: types.StatusActive},
			},
			want: types.Entitlements{
				HasAnySubscription:      true,
				HasPrimaryFeatureAccess: true,
				ActivePlans:             []string{"B", "C"},
			},
		},
		{
			name: "Inactive items are ignored",
			items: []types.Item{
				{PlanID: "A", Status: "canceled"},
				{PlanID: "B", Status: "past_due"},
				{PlanID: "C", Status: "ended"},
			},
		},
		{
			name: "Unknown active plan counts as a subscription only",
			items: []types.Item{
				{PlanID: "Z", Status: types.StatusActive},
				{PlanID: "Z", Status: types.StatusActive},
			},
			want: types.Entitlements{
				HasAnySubscription: true,
				ActivePlans:        []string{"Z"},
			},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Resolve(tt.items))
		})
	}
}
