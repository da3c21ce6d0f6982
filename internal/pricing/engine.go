package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-kasir/internal/loyalty"
	"github.com/noah-isme/backend-kasir/internal/promo"
)

// Money represents a monetary value in whole currency units.
type Money = int64

// UserType is the optional affiliation selected at checkout.
type UserType string

const (
	UserTypeNone      UserType = ""
	UserTypeStudent   UserType = "student"
	UserTypeProfessor UserType = "professor"
	UserTypeEmployee  UserType = "employee"
)

// ParseUserType normalises a user type name. The empty string means no selection.
func ParseUserType(value string) (UserType, error) {
	switch ut := UserType(strings.ToLower(strings.TrimSpace(value))); ut {
	case UserTypeNone, UserTypeStudent, UserTypeProfessor, UserTypeEmployee:
		return ut, nil
	default:
		return UserTypeNone, fmt.Errorf("unknown user type %q", value)
	}
}

// DefaultUserTypeRates returns the discount in basis points per user type.
func DefaultUserTypeRates() map[UserType]int32 {
	return map[UserType]int32{
		UserTypeStudent:   1000,
		UserTypeProfessor: 1500,
		UserTypeEmployee:  2000,
	}
}

// Source names the discount category that won.
type Source string

const (
	SourceNone       Source = "none"
	SourceUserType   Source = "user_type"
	SourceLoyalty    Source = "loyalty"
	SourcePromotion  Source = "promotion"
	SourceRedemption Source = "redemption"
)

// Item describes a line item used for pricing calculation.
type Item struct {
	ItemID      string
	Category    string
	Subcategory string
	Qty         int
	UnitPrice   Money
}

// LineTotal is unit price times quantity.
func (it Item) LineTotal() Money {
	if it.Qty <= 0 {
		return 0
	}
	return Money(it.Qty) * it.UnitPrice
}

// Customer is the loyalty snapshot read for pricing. It may be stale.
type Customer struct {
	ID           string
	PointBalance int64
}

// Context carries the transactional inputs besides the cart.
type Context struct {
	Now        time.Time
	UserType   UserType
	Customer   *Customer
	Redemption *Money
}

// Candidate is one discount option expressed as an absolute amount.
type Candidate struct {
	Source Source `json:"source"`
	Amount Money  `json:"amount"`
	Detail string `json:"detail,omitempty"`
}

// Quote aggregates computed pricing components.
type Quote struct {
	Subtotal   Money           `json:"subtotal"`
	Discount   Money           `json:"discountAmount"`
	Source     Source          `json:"discountSource"`
	Total      Money           `json:"total"`
	Candidates []Candidate     `json:"candidates"`
	Promotions []promo.Applied `json:"promotions,omitempty"`
}

// Engine evaluates discounts against the configured rule set.
type Engine struct {
	Promotions    []promo.Rule
	Tiers         loyalty.Table
	UserTypeRates map[UserType]int32
	Location      *time.Location
}

// Subtotal sums the line totals.
func Subtotal(items []Item) Money {
	var subtotal Money
	for _, it := range items {
		subtotal += it.LineTotal()
	}
	return subtotal
}

// Compute prices the cart. It never fails: unknown items are rejected when the cart is built.
func (e Engine) Compute(items []Item, c Context) Quote {
	subtotal := Subtotal(items)
	candidates, applied := e.candidates(items, subtotal, c)
	winner := SelectDiscount(candidates)

	total := subtotal - winner.Amount
	if total < 0 {
		total = 0
	}
	q := Quote{
		Subtotal:   subtotal,
		Discount:   winner.Amount,
		Source:     winner.Source,
		Total:      total,
		Candidates: candidates,
	}
	if winner.Source == SourcePromotion {
		q.Promotions = applied
	}
	return q
}

// candidates evaluates user type, loyalty, promotion and redemption in that order.
func (e Engine) candidates(items []Item, subtotal Money, c Context) ([]Candidate, []promo.Applied) {
	var (
		out     []Candidate
		applied []promo.Applied
	)
	if c.UserType != UserTypeNone {
		rate := e.userTypeRate(c.UserType)
		out = append(out, Candidate{
			Source: SourceUserType,
			Amount: percentOf(subtotal, rate),
			Detail: string(c.UserType),
		})
	}
	if c.Customer != nil {
		tier := e.Tiers.Lookup(c.Customer.PointBalance)
		out = append(out, Candidate{
			Source: SourceLoyalty,
			Amount: percentOf(subtotal, tier.PercentBps),
			Detail: tier.Name,
		})
	}
	if len(e.Promotions) > 0 {
		var amount Money
		amount, applied = promo.BestPerLine(e.Promotions, promoItems(items), e.localTime(c.Now), string(c.UserType))
		if len(applied) > 0 {
			out = append(out, Candidate{Source: SourcePromotion, Amount: amount, Detail: applied[0].RuleID})
		}
	}
	if c.Redemption != nil {
		out = append(out, Candidate{Source: SourceRedemption, Amount: *c.Redemption})
	}
	return out, applied
}

// SelectDiscount returns the single largest candidate. Discounts never stack. On equal
// amounts the later category in user_type < loyalty < promotion < redemption wins.
func SelectDiscount(candidates []Candidate) Candidate {
	best := Candidate{Source: SourceNone}
	for _, c := range candidates {
		if c.Amount <= 0 {
			continue
		}
		if c.Amount > best.Amount || (c.Amount == best.Amount && precedence(c.Source) > precedence(best.Source)) {
			best = c
		}
	}
	return best
}

func precedence(s Source) int {
	switch s {
	case SourceUserType:
		return 1
	case SourceLoyalty:
		return 2
	case SourcePromotion:
		return 3
	case SourceRedemption:
		return 4
	default:
		return 0
	}
}

func (e Engine) userTypeRate(ut UserType) int32 {
	if e.UserTypeRates != nil {
		return e.UserTypeRates[ut]
	}
	return DefaultUserTypeRates()[ut]
}

func (e Engine) localTime(now time.Time) time.Time {
	if now.IsZero() {
		now = time.Now()
	}
	if e.Location != nil {
		return now.In(e.Location)
	}
	return now
}

func percentOf(amount Money, bps int32) Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount * Money(bps)) / 10000
}

func promoItems(items []Item) []promo.Item {
	out := make([]promo.Item, 0, len(items))
	for _, it := range items {
		out = append(out, promo.Item{
			ItemID:      it.ItemID,
			Category:    it.Category,
			Subcategory: it.Subcategory,
			Subtotal:    it.LineTotal(),
		})
	}
	return out
}
