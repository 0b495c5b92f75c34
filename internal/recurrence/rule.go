package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Unit is the calendar unit a recurrence advances by.
type Unit string

const (
	UnitDay   Unit = "day"
	UnitWeek  Unit = "week"
	UnitMonth Unit = "month"
	UnitYear  Unit = "year"
)

// ParseUnit accepts the unit names and their plural forms.
func ParseUnit(raw string) (Unit, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s") {
	case "day":
		return UnitDay, nil
	case "week":
		return UnitWeek, nil
	case "month":
		return UnitMonth, nil
	case "year":
		return UnitYear, nil
	default:
		return "", fmt.Errorf("unknown unit %q", raw)
	}
}

func (u Unit) valid() bool {
	switch u {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	}
	return false
}

// Rule names a recurrence cadence.
type Rule string

const (
	RuleDaily   Rule = "daily"
	RuleWeekly  Rule = "weekly"
	RuleMonthly Rule = "monthly"
	RuleYearly  Rule = "yearly"
	RuleCustom  Rule = "custom"
)

// unit maps a built-in rule to the unit it adds once per cycle.
func (r Rule) unit() (Unit, bool) {
	switch r {
	case RuleDaily:
		return UnitDay, true
	case RuleWeekly:
		return UnitWeek, true
	case RuleMonthly:
		return UnitMonth, true
	case RuleYearly:
		return UnitYear, true
	}
	return "", false
}

// Recurrence is either a built-in cadence or a custom rule carrying its
// parameters. The zero value recurs never; build values with the
// constructors below.
type Recurrence struct {
	rule   Rule
	custom Custom
}

func Daily() Recurrence   { return Recurrence{rule: RuleDaily} }
func Weekly() Recurrence  { return Recurrence{rule: RuleWeekly} }
func Monthly() Recurrence { return Recurrence{rule: RuleMonthly} }
func Yearly() Recurrence  { return Recurrence{rule: RuleYearly} }

// CustomRule wraps c. The parameters are copied.
func CustomRule(c Custom) Recurrence {
	return Recurrence{rule: RuleCustom, custom: c.clone()}
}

// BuiltIn returns the recurrence for a non-custom rule name.
func BuiltIn(rule Rule) (Recurrence, error) {
	if _, ok := rule.unit(); !ok {
		return Recurrence{}, fmt.Errorf("%q is not a built-in rule", rule)
	}
	return Recurrence{rule: rule}, nil
}

func (r Recurrence) Rule() Rule { return r.rule }

// Custom returns the custom parameters, if r is a custom rule.
func (r Recurrence) Custom() (Custom, bool) {
	if r.rule != RuleCustom {
		return Custom{}, false
	}
	return r.custom.clone(), true
}

func (r Recurrence) IsZero() bool { return r.rule == "" }

type recurrenceJSON struct {
	Rule   Rule    `json:"rule"`
	Custom *Custom `json:"custom,omitempty"`
}

func (r Recurrence) MarshalJSON() ([]byte, error) {
	out := recurrenceJSON{Rule: r.rule}
	if r.rule == RuleCustom {
		c := r.custom.clone()
		out.Custom = &c
	}
	return json.Marshal(out)
}

func (r *Recurrence) UnmarshalJSON(data []byte) error {
	var in recurrenceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Rule == RuleCustom {
		if in.Custom == nil {
			return fmt.Errorf("custom recurrence without parameters")
		}
		*r = CustomRule(*in.Custom)
		return nil
	}
	built, err := BuiltIn(in.Rule)
	if err != nil {
		return err
	}
	*r = built
	return nil
}
