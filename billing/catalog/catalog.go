package catalog

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

var ErrNoPrimaryPlan = errors.New("no plan grants the primary feature")

type Plan struct {
	ID                   string `yaml:"id"`
	GrantsPrimaryFeature bool   `yaml:"grants_primary_feature"`
}

type file struct {
	Plans []Plan `yaml:"plans"`
}

// Catalog maps billing plan IDs to the entitlements they unlock. Several
// plans may grant the primary feature.
type Catalog struct {
	plans   []Plan
	known   mapset.Set[string]
	primary mapset.Set[string]
}

func New(plans []Plan) (*Catalog, error) {
	c := &Catalog{
		known:   mapset.NewThreadUnsafeSet[string](),
		primary: mapset.NewThreadUnsafeSet[string](),
	}

	for _, p := range plans {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("plan with empty id")
		}
		if !c.known.Add(id) {
			return nil, fmt.Errorf("duplicate plan id %q", id)
		}
		if p.GrantsPrimaryFeature {
			c.primary.Add(id)
		}
		c.plans = append(c.plans, Plan{ID: id, GrantsPrimaryFeature: p.GrantsPrimaryFeature})
	}

	if c.primary.IsEmpty() {
		return nil, ErrNoPrimaryPlan
	}

	return c, nil
}

// Load reads a YAML catalog file of the form
//
//	plans:
//	  - id: cplan_primary
//	    grants_primary_feature: true
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading catalog: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("error parsing catalog %q: %w", path, err)
	}

	return New(f.Plans)
}

// Parse reads the compact environment form "plan_a:true,plan_b,plan_c:false".
// A bare id grants the primary feature.
func Parse(s string) (*Catalog, error) {
	var plans []Plan
	for _, elem := range strings.Split(s, ",") {
		elem = strings.TrimSpace(elem)
		if elem == "" {
			continue
		}

		id, grants, found := strings.Cut(elem, ":")
		p := Plan{ID: id, GrantsPrimaryFeature: true}
		if found {
			v, err := strconv.ParseBool(strings.TrimSpace(grants))
			if err != nil {
				return nil, fmt.Errorf("malformed catalog entry %q: %w", elem, err)
			}
			p.GrantsPrimaryFeature = v
		}
		plans = append(plans, p)
	}

	return New(plans)
}

func (c *Catalog) Plans() []Plan {
	return slices.Clone(c.plans)
}

func (c *Catalog) Known(planID string) bool {
	return c.known.Contains(planID)
}

func (c *Catalog) GrantsPrimary(planID string) bool {
	return c.primary.Contains(planID)
}

// PrimaryPlans returns the sorted IDs of every plan granting the primary
// feature.
func (c *Catalog) PrimaryPlans() []string {
	ids := c.primary.ToSlice()
	slices.Sort(ids)
	return ids
}

// Resolve derives the entitlement write set from an event's items. Only
// active items count.
func (c *Catalog) Resolve(items []types.Item) types.Entitlements {
	active := lo.Filter(items, func(i types.Item, _ int) bool {
		return i.Status == types.StatusActive
	})

	var e types.Entitlements
	if len(active) == 0 {
		return e
	}

	plans := mapset.NewThreadUnsafeSet[string]()
	e.HasAnySubscription = true
	for _, i := range active {
		if i.PlanID != "" {
			plans.Add(i.PlanID)
		}
		if c.GrantsPrimary(i.PlanID) {
			e.HasPrimaryFeatureAccess = true
		}
	}

	if !plans.IsEmpty() {
		e.ActivePlans = plans.ToSlice()
		slices.Sort(e.ActivePlans)
	}

	return e
}
