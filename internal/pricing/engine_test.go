package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/loyalty"
	"github.com/noah-isme/backend-kasir/internal/promo"
)

func happyHour() promo.Rule {
	return promo.Rule{
		ID:         "happy_hour_matutino",
		PercentBps: 1500,
		Start:      7 * 60,
		End:        10 * 60,
		Weekdays:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Categories: []string{"Café"},
		Active:     true,
	}
}

func mondayAt(hour int) time.Time {
	return time.Date(2024, time.January, 15, hour, 0, 0, 0, time.UTC)
}

func coffeeCart() []Item {
	return []Item{{ItemID: "52", Category: "Café", Qty: 2, UnitPrice: 3000}}
}

func TestLineArithmetic(t *testing.T) {
	items := []Item{
		{ItemID: "1", Qty: 3, UnitPrice: 2500},
		{ItemID: "2", Qty: 1, UnitPrice: 999},
		{ItemID: "3", Qty: 0, UnitPrice: 100},
	}
	require.Equal(t, Money(7500), items[0].LineTotal())
	require.Equal(t, Money(0), items[2].LineTotal())
	require.Equal(t, Money(8499), Subtotal(items))
}

func TestScenarioNoDiscount(t *testing.T) {
	e := Engine{Tiers: loyalty.DefaultTable()}
	q := e.Compute(coffeeCart(), Context{Now: mondayAt(8)})
	require.Equal(t, Money(6000), q.Subtotal)
	require.Equal(t, Money(0), q.Discount)
	require.Equal(t, SourceNone, q.Source)
	require.Equal(t, Money(6000), q.Total)
	require.Empty(t, q.Candidates)
}

func TestScenarioMorningPromotion(t *testing.T) {
	e := Engine{Tiers: loyalty.DefaultTable(), Promotions: []promo.Rule{happyHour()}}
	q := e.Compute(coffeeCart(), Context{Now: mondayAt(8)})
	require.Equal(t, Money(900), q.Discount)
	require.Equal(t, SourcePromotion, q.Source)
	require.Equal(t, Money(5100), q.Total)
	require.Len(t, q.Promotions, 1)
	require.Equal(t, "happy_hour_matutino", q.Promotions[0].RuleID)

	q = e.Compute(coffeeCart(), Context{Now: mondayAt(15)})
	require.Equal(t, Money(6000), q.Total, "promotion must not apply outside its window")
}

func TestScenarioLoyaltyBeatsPromotion(t *testing.T) {
	e := Engine{Tiers: loyalty.DefaultTable(), Promotions: []promo.Rule{happyHour()}}
	items := []Item{
		{ItemID: "52", Category: "Café", Qty: 1, UnitPrice: 3000},
		{ItemID: "90", Category: "Panadería", Qty: 1, UnitPrice: 7000},
	}
	q := e.Compute(items, Context{Now: mondayAt(8), Customer: &Customer{ID: "c1", PointBalance: 1800}})
	require.Equal(t, Money(10000), q.Subtotal)
	require.Equal(t, SourceLoyalty, q.Source)
	require.Equal(t, Money(1000), q.Discount)
	require.Equal(t, Money(9000), q.Total)
	require.Len(t, q.Candidates, 2)
	require.Nil(t, q.Promotions)
}

func TestScenarioRedemptionWins(t *testing.T) {
	e := Engine{Tiers: loyalty.DefaultTable()}
	redeem := Money(2000)
	items := []Item{{ItemID: "90", Category: "Panadería", Qty: 2, UnitPrice: 5000}}
	q := e.Compute(items, Context{
		Now:        mondayAt(12),
		UserType:   UserTypeStudent,
		Customer:   &Customer{ID: "c1", PointBalance: 600},
		Redemption: &redeem,
	})
	require.Equal(t, SourceRedemption, q.Source)
	require.Equal(t, Money(2000), q.Discount)
	require.Equal(t, Money(8000), q.Total)
}

func TestDiscountsNeverStack(t *testing.T) {
	e := Engine{Tiers: loyalty.DefaultTable(), Promotions: []promo.Rule{happyHour()}}
	redeem := Money(500)
	for _, ut := range []UserType{UserTypeNone, UserTypeStudent, UserTypeProfessor, UserTypeEmployee} {
		for _, balance := range []int64{0, 700, 2000, 7000, 12000} {
			q := e.Compute(coffeeCart(), Context{
				Now:        mondayAt(8),
				UserType:   ut,
				Customer:   &Customer{ID: "c", PointBalance: balance},
				Redemption: &redeem,
			})
			var highest Money
			for _, c := range q.Candidates {
				if c.Amount > highest {
					highest = c.Amount
				}
			}
			require.Equal(t, highest, q.Discount)
			require.Equal(t, q.Subtotal-q.Discount, q.Total)
		}
	}
}

func TestSelectDiscountTiePrecedence(t *testing.T) {
	winner := SelectDiscount([]Candidate{
		{Source: SourceRedemption, Amount: 1000},
		{Source: SourceLoyalty, Amount: 1000},
		{Source: SourceUserType, Amount: 1000},
	})
	require.Equal(t, SourceRedemption, winner.Source)

	winner = SelectDiscount([]Candidate{
		{Source: SourcePromotion, Amount: 600},
		{Source: SourceLoyalty, Amount: 600},
	})
	require.Equal(t, SourcePromotion, winner.Source)

	winner = SelectDiscount([]Candidate{{Source: SourceLoyalty, Amount: 0}})
	require.Equal(t, SourceNone, winner.Source)
}

func TestTotalClampedAtZero(t *testing.T) {
	e := Engine{Tiers: loyalty.DefaultTable()}
	redeem := Money(5000)
	q := e.Compute([]Item{{ItemID: "1", Qty: 1, UnitPrice: 1200}}, Context{Redemption: &redeem})
	require.Equal(t, Money(5000), q.Discount)
	require.Equal(t, Money(0), q.Total)
}

func TestUserTypeRates(t *testing.T) {
	e := Engine{Tiers: loyalty.DefaultTable()}
	items := []Item{{ItemID: "1", Qty: 1, UnitPrice: 10000}}
	expected := map[UserType]Money{
		UserTypeStudent:   1000,
		UserTypeProfessor: 1500,
		UserTypeEmployee:  2000,
	}
	for ut, amount := range expected {
		q := e.Compute(items, Context{UserType: ut})
		require.Equal(t, amount, q.Discount, ut)
		require.Equal(t, SourceUserType, q.Source)
	}
	_, err := ParseUserType("alumni")
	require.Error(t, err)
	ut, err := ParseUserType(" Professor ")
	require.NoError(t, err)
	require.Equal(t, UserTypeProfessor, ut)
}

func TestEngineLocation(t *testing.T) {
	bogota := time.FixedZone("COT", -5*3600)
	e := Engine{Tiers: loyalty.DefaultTable(), Promotions: []promo.Rule{happyHour()}, Location: bogota}
	// 13:00 UTC is 08:00 in Bogotá.
	q := e.Compute(coffeeCart(), Context{Now: mondayAt(13)})
	require.Equal(t, SourcePromotion, q.Source)
}
