package rules_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/loyalty"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/rules"
)

func TestDefaultRules(t *testing.T) {
	r := rules.Default()

	require.Len(t, r.Promotions, 1)
	happy := r.Promotions[0]
	require.Equal(t, "happy_hour_matutino", happy.ID)
	require.EqualValues(t, 1500, happy.PercentBps)
	require.Equal(t, "07:00", happy.Start.String())
	require.Equal(t, "10:00", happy.End.String())
	require.True(t, happy.Active)

	names := make([]string, 0, 5)
	for _, tier := range r.Tiers.Tiers() {
		names = append(names, tier.Name)
	}
	require.Equal(t, []string{"Bronce", "Plata", "Oro", "Platino", "Diamante"}, names)
	require.Equal(t, "Oro", r.Tiers.Lookup(1800).Name)
	require.Equal(t, loyalty.Unbounded, r.Tiers.Lookup(10000).MaxPoints)

	require.Equal(t, pricing.DefaultUserTypeRates(), r.UserTypeRates)
	require.EqualValues(t, 50, r.Redemption.MinimumPoints)
	require.EqualValues(t, 1000, r.Redemption.DiscountPer100)
	require.EqualValues(t, 1, r.Accrual.PointsPerUnit)
	require.EqualValues(t, 2, r.Accrual.VIPMultiplier)
	require.Equal(t, "America/Bogota", r.Location.String())
}

func TestDefaultEngineScenarioB(t *testing.T) {
	engine := rules.Default().Engine()
	loc := engine.Location
	monday := time.Date(2024, time.January, 1, 8, 0, 0, 0, loc)

	q := engine.Compute([]pricing.Item{{ItemID: "52", Category: "Café", Qty: 2, UnitPrice: 3000}}, pricing.Context{Now: monday})
	require.EqualValues(t, 900, q.Discount)
	require.EqualValues(t, 5100, q.Total)
	require.Equal(t, pricing.SourcePromotion, q.Source)
}

func TestParseOverrides(t *testing.T) {
	doc := `
timezone: UTC
user_types:
  student: 12.5
promotions:
  - id: tarde
    percent: 20
    start: "15:00"
    end: "17:30"
    weekdays: [6]
    categories: [Postres]
    subcategories: [Tortas]
    required_user_type: student
    active: false
tiers:
  - {name: Base, min: 0, max: 99, percent: 0}
  - {name: Top, min: 100, percent: 50}
redemption:
  minimum_points: 100
accrual:
  points_per_unit: 0.01
`
	r, err := rules.Parse([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, map[pricing.UserType]int32{pricing.UserTypeStudent: 1250}, r.UserTypeRates)
	require.Len(t, r.Promotions, 1)
	require.False(t, r.Promotions[0].Active)
	require.Equal(t, "tarde", r.Promotions[0].Name)
	require.Equal(t, []time.Weekday{time.Saturday}, r.Promotions[0].Weekdays)
	require.EqualValues(t, 100, r.Redemption.MinimumPoints)
	require.EqualValues(t, 1000, r.Redemption.DiscountPer100)
	require.InDelta(t, 0.01, r.Accrual.PointsPerUnit, 1e-9)
	require.EqualValues(t, 2, r.Accrual.VIPMultiplier)
	require.Equal(t, time.UTC, r.Location)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"gap in tiers": `
tiers:
  - {name: A, min: 0, max: 99}
  - {name: B, min: 101}
`,
		"bounded last tier": `
tiers:
  - {name: A, min: 0, max: 99}
`,
		"no tiers": `
promotions: []
`,
		"unknown user type": `
user_types: {visitor: 5}
tiers: [{name: A, min: 0}]
`,
		"bad weekday": `
promotions:
  - {id: p, percent: 10, start: "07:00", end: "08:00", weekdays: [7], categories: [Café]}
tiers: [{name: A, min: 0}]
`,
		"window reversed": `
promotions:
  - {id: p, percent: 10, start: "10:00", end: "08:00", weekdays: [1], categories: [Café]}
tiers: [{name: A, min: 0}]
`,
		"bad clock": `
promotions:
  - {id: p, percent: 10, start: "7am", end: "08:00", weekdays: [1], categories: [Café]}
tiers: [{name: A, min: 0}]
`,
		"duplicate promotion": `
promotions:
  - {id: p, percent: 10, start: "07:00", end: "08:00", weekdays: [1], categories: [Café]}
  - {id: p, percent: 5, start: "07:00", end: "08:00", weekdays: [1], categories: [Café]}
tiers: [{name: A, min: 0}]
`,
		"unknown field": `
tier: []
`,
		"percent out of range": `
tiers: [{name: A, min: 0, percent: 150}]
`,
		"unknown timezone": `
timezone: Mars/Olympus
tiers: [{name: A, min: 0}]
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := rules.Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tiers: [{name: Solo, min: 0, percent: 5}]\n"), 0o600))

	r, err := rules.Load(path)
	require.NoError(t, err)
	require.Equal(t, "Solo", r.Tiers.Lookup(123456).Name)
	require.Empty(t, r.Promotions)

	_, err = rules.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
