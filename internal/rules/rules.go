package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/backend-kasir/internal/loyalty"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/promo"
	"github.com/noah-isme/backend-kasir/internal/redemption"
)

// Rules is the validated business configuration. It is built once at startup
// and never mutated.
type Rules struct {
	Promotions    []promo.Rule
	Tiers         loyalty.Table
	UserTypeRates map[pricing.UserType]int32
	Redemption    redemption.Policy
	Accrual       loyalty.AccrualPolicy
	Location      *time.Location
}

// Engine returns a pricing engine bound to these rules.
func (r Rules) Engine() pricing.Engine {
	return pricing.Engine{
		Promotions:    r.Promotions,
		Tiers:         r.Tiers,
		UserTypeRates: r.UserTypeRates,
		Location:      r.Location,
	}
}

type document struct {
	Timezone   string             `yaml:"timezone"`
	UserTypes  map[string]float64 `yaml:"user_types" validate:"omitempty,dive,keys,oneof=student professor employee,endkeys,gte=0,lte=100"`
	Promotions []promotionDoc     `yaml:"promotions" validate:"omitempty,dive"`
	Tiers      []tierDoc          `yaml:"tiers" validate:"required,min=1,dive"`
	Redemption redemptionDoc      `yaml:"redemption"`
	Accrual    accrualDoc         `yaml:"accrual"`
}

type promotionDoc struct {
	ID               string   `yaml:"id" validate:"required"`
	Name             string   `yaml:"name"`
	Percent          float64  `yaml:"percent" validate:"gt=0,lte=100"`
	Start            string   `yaml:"start" validate:"required"`
	End              string   `yaml:"end" validate:"required"`
	Weekdays         []int    `yaml:"weekdays" validate:"required,min=1,dive,gte=0,lte=6"`
	Categories       []string `yaml:"categories" validate:"required,min=1,dive,required"`
	Subcategories    []string `yaml:"subcategories" validate:"omitempty,dive,required"`
	RequiredUserType string   `yaml:"required_user_type" validate:"omitempty,oneof=student professor employee"`
	Active           *bool    `yaml:"active"`
}

type tierDoc struct {
	Name    string  `yaml:"name" validate:"required"`
	Min     int64   `yaml:"min" validate:"gte=0"`
	Max     *int64  `yaml:"max"`
	Percent float64 `yaml:"percent" validate:"gte=0,lte=100"`
}

type redemptionDoc struct {
	MinimumPoints  int64 `yaml:"minimum_points" validate:"gte=0"`
	DiscountPer100 int64 `yaml:"discount_per_100" validate:"gte=0"`
}

type accrualDoc struct {
	PointsPerUnit *float64 `yaml:"points_per_unit" validate:"omitempty,gte=0"`
	VIPMultiplier int64    `yaml:"vip_multiplier" validate:"gte=0"`
}

var validate = validator.New()

//go:embed default.yaml
var defaultDocument []byte

// Default returns the built-in café rules.
func Default() Rules {
	r, err := Parse(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("rules: built-in document: %v", err))
	}
	return r
}

// Load reads and validates a rules file.
func Load(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("rules: read %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return Rules{}, fmt.Errorf("rules: %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a YAML rules document. Unknown keys are rejected.
func Parse(data []byte) (Rules, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Rules{}, fmt.Errorf("decode: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return Rules{}, fmt.Errorf("validate: %w", err)
	}
	return doc.build()
}

func (d document) build() (Rules, error) {
	out := Rules{
		UserTypeRates: pricing.DefaultUserTypeRates(),
		Redemption:    redemption.DefaultPolicy(),
		Accrual:       loyalty.DefaultAccrual(),
		Location:      time.Local,
	}
	if tz := strings.TrimSpace(d.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Rules{}, fmt.Errorf("timezone: %w", err)
		}
		out.Location = loc
	}
	if len(d.UserTypes) > 0 {
		rates := make(map[pricing.UserType]int32, len(d.UserTypes))
		for name, pct := range d.UserTypes {
			ut, err := pricing.ParseUserType(name)
			if err != nil {
				return Rules{}, err
			}
			rates[ut] = bps(pct)
		}
		out.UserTypeRates = rates
	}

	seen := make(map[string]struct{}, len(d.Promotions))
	for _, p := range d.Promotions {
		if _, dup := seen[p.ID]; dup {
			return Rules{}, fmt.Errorf("promotion %q defined twice", p.ID)
		}
		seen[p.ID] = struct{}{}
		rule, err := p.rule()
		if err != nil {
			return Rules{}, fmt.Errorf("promotion %q: %w", p.ID, err)
		}
		out.Promotions = append(out.Promotions, rule)
	}

	tiers := make([]loyalty.Tier, 0, len(d.Tiers))
	for _, t := range d.Tiers {
		upper := loyalty.Unbounded
		if t.Max != nil {
			upper = *t.Max
		}
		tiers = append(tiers, loyalty.Tier{Name: t.Name, MinPoints: t.Min, MaxPoints: upper, PercentBps: bps(t.Percent)})
	}
	table, err := loyalty.NewTable(tiers)
	if err != nil {
		return Rules{}, err
	}
	out.Tiers = table

	if d.Redemption.MinimumPoints > 0 {
		out.Redemption.MinimumPoints = d.Redemption.MinimumPoints
	}
	if d.Redemption.DiscountPer100 > 0 {
		out.Redemption.DiscountPer100 = d.Redemption.DiscountPer100
	}
	if d.Accrual.PointsPerUnit != nil {
		out.Accrual.PointsPerUnit = *d.Accrual.PointsPerUnit
	}
	if d.Accrual.VIPMultiplier > 0 {
		out.Accrual.VIPMultiplier = d.Accrual.VIPMultiplier
	}
	return out, nil
}

func (p promotionDoc) rule() (promo.Rule, error) {
	start, err := promo.ParseClock(p.Start)
	if err != nil {
		return promo.Rule{}, err
	}
	end, err := promo.ParseClock(p.End)
	if err != nil {
		return promo.Rule{}, err
	}
	if end < start {
		return promo.Rule{}, errors.New("end before start")
	}
	days := make([]time.Weekday, 0, len(p.Weekdays))
	for _, d := range p.Weekdays {
		days = append(days, time.Weekday(d))
	}
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	return promo.Rule{
		ID:               p.ID,
		Name:             name,
		PercentBps:       bps(p.Percent),
		Start:            start,
		End:              end,
		Weekdays:         days,
		Categories:       p.Categories,
		Subcategories:    p.Subcategories,
		RequiredUserType: p.RequiredUserType,
		Active:           active,
	}, nil
}

func bps(percent float64) int32 {
	return int32(math.Round(percent * 100))
}
