package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

func TestReport(t *testing.T) {
	var out bytes.Buffer
	report(&out, []types.Record{
		{UserID: "u_1", HasAnySubscription: true, HasPrimaryFeatureAccess: true, ActivePlans: []string{"plan_primary"}},
		{UserID: "u_2", HasAnySubscription: true, ActivePlans: []string{"plan_newsletter", "plan_primary_annual"}},
		{UserID: "u_3", IsWhitelisted: true},
		{UserID: "u_4"},
	})

	assert.Equal(t, ""+
		"Total users:          004\n"+
		"Users with access:    002\n"+
		"Any subscription:     002\n"+
		"Primary feature:      001\n"+
		"Whitelisted:          001\n"+
		"  plan_newsletter     001\n"+
		"  plan_primary        001\n"+
		"  plan_primary_annual 001\n",
		out.String())
}
