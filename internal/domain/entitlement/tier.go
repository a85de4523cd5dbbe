// Package entitlement contains the subscription-tier catalog and the
// daily quota counter. Tiers themselves are external configuration: this
// engine only reads plan names supplied by the identity provider and
// maps them to caps and content partitions.
package entitlement

// Plan is a subscription plan name as reported by the identity provider.
type Plan string

// Known plans.
const (
	PlanFree      Plan = "free"
	PlanWeekly    Plan = "weekly"
	PlanMonthly   Plan = "monthly"
	PlanQuarterly Plan = "quarterly"
	PlanAnnual    Plan = "annual"
)

// Partition is the content partition a tier grants on its own, before
// the unlock gate is considered.
type Partition string

const (
	// PartitionRestricted grants only the curated restricted subset.
	PartitionRestricted Partition = "restricted"

	// PartitionFull grants the full question bank.
	PartitionFull Partition = "full"
)

// Unlimited marks a tier with no daily cap.
const Unlimited = -1

// Tier maps a plan to its daily question cap and content partition.
type Tier struct {
	// Plan names the tier.
	Plan Plan

	// DailyCap is the number of questions per calendar day, or Unlimited.
	DailyCap int

	// Partition is the content partition the tier grants.
	Partition Partition
}

// IsUnlimited reports whether the tier has no daily cap.
func (t Tier) IsUnlimited() bool {
	return t.DailyCap == Unlimited
}

// Catalog resolves plan names to tiers.
type Catalog struct {
	tiers    map[Plan]Tier
	fallback Tier
}

// DefaultCatalog returns the production tier catalog. The free tier is
// the most restrictive and doubles as the fallback for unknown plans.
func DefaultCatalog() *Catalog {
	free := Tier{Plan: PlanFree, DailyCap: 50, Partition: PartitionRestricted}
	return &Catalog{
		tiers: map[Plan]Tier{
			PlanFree:      free,
			PlanWeekly:    {Plan: PlanWeekly, DailyCap: 200, Partition: PartitionRestricted},
			PlanMonthly:   {Plan: PlanMonthly, DailyCap: 500, Partition: PartitionRestricted},
			PlanQuarterly: {Plan: PlanQuarterly, DailyCap: Unlimited, Partition: PartitionFull},
			PlanAnnual:    {Plan: PlanAnnual, DailyCap: Unlimited, Partition: PartitionFull},
		},
		fallback: free,
	}
}

// NewCatalog builds a catalog from explicit tiers with the given
// fallback. Used by tests and by deployments with custom plans.
func NewCatalog(tiers []Tier, fallback Tier) *Catalog {
	byPlan := make(map[Plan]Tier, len(tiers))
	for _, t := range tiers {
		byPlan[t.Plan] = t
	}
	return &Catalog{tiers: byPlan, fallback: fallback}
}

// Resolve returns the tier for a plan name. Unknown plans fall back to
// the most restrictive tier rather than failing the request; the second
// return value reports whether the plan was known.
func (c *Catalog) Resolve(plan Plan) (Tier, bool) {
	if tier, ok := c.tiers[plan]; ok {
		return tier, true
	}
	return c.fallback, false
}

// Fallback returns the most restrictive tier.
func (c *Catalog) Fallback() Tier {
	return c.fallback
}
