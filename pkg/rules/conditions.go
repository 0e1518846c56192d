package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Field is a lead column a condition can test.
type Field string

const (
	FieldSource    Field = "source"
	FieldLeadScore Field = "lead_score"
	FieldCreatedAt Field = "created_at"
)

// Operator compares a field with a condition value.
type Operator string

const (
	OpEquals    Operator = "equals"
	OpNotEquals Operator = "not_equals"
	OpContains  Operator = "contains"
	OpToday     Operator = "today"
	OpThisWeek  Operator = "this_week"
)

// operators enumerates the supported (field, operator) pairs.
var operators = map[Field][]Operator{
	FieldSource:    {OpEquals, OpNotEquals, OpContains},
	FieldLeadScore: {OpEquals, OpNotEquals},
	FieldCreatedAt: {OpToday, OpThisWeek},
}

// Condition is one field/operator/value test. Date operators take no value.
type Condition struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
}

func (c Condition) String() string {
	if c.Value == "" {
		return fmt.Sprintf("%s %s", c.Field, c.Operator)
	}
	return fmt.Sprintf("%s %s %q", c.Field, c.Operator, c.Value)
}

// Validate checks the pair against the supported set and normalizes the value.
func (c Condition) Validate() (Condition, error) {
	c.Field = Field(strings.TrimSpace(string(c.Field)))
	c.Operator = Operator(strings.TrimSpace(string(c.Operator)))
	c.Value = strings.TrimSpace(c.Value)

	ops, ok := operators[c.Field]
	if !ok {
		return c, domain.NewValidationError("unsupported condition field: " + string(c.Field))
	}
	supported := false
	for _, op := range ops {
		if op == c.Operator {
			supported = true
			break
		}
	}
	if !supported {
		return c, domain.NewValidationError(fmt.Sprintf("operator %q is not supported for %s", c.Operator, c.Field))
	}

	switch c.Field {
	case FieldSource:
		if c.Value == "" {
			return c, domain.NewValidationError("source conditions require a value")
		}
	case FieldLeadScore:
		score, ok := models.ParseLeadScore(c.Value)
		if !ok {
			return c, domain.NewValidationError("invalid lead_score: " + c.Value)
		}
		c.Value = string(score)
	case FieldCreatedAt:
		c.Value = ""
	}
	return c, nil
}

// ValidateConditions validates every condition, returning the normalized list.
func ValidateConditions(conds []Condition) ([]Condition, error) {
	out := make([]Condition, 0, len(conds))
	for i, c := range conds {
		v, err := c.Validate()
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("condition %d: %s", i+1, domain.GetErrorMessage(err)))
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseConditions decodes the stored JSON condition list.
func ParseConditions(raw string) ([]Condition, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []Condition{}, nil
	}
	var conds []Condition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil {
		return nil, domain.NewValidationError("conditions must be a JSON array of {field, operator, value}")
	}
	if conds == nil {
		conds = []Condition{}
	}
	return conds, nil
}

func encodeConditions(conds []Condition) (string, error) {
	if conds == nil {
		conds = []Condition{}
	}
	b, err := json.Marshal(conds)
	if err != nil {
		return "", fmt.Errorf("failed to encode conditions: %w", err)
	}
	return string(b), nil
}

// Matcher builds the ANDed predicates of a compiled condition list against a
// leads table. Each call returns new predicates.
type Matcher func(t *entsql.SelectTable) []*entsql.Predicate

// Compile validates conds and binds the date operators to now. An empty list
// matches every lead.
func Compile(conds []Condition, now time.Time) (Matcher, error) {
	valid, err := ValidateConditions(conds)
	if err != nil {
		return nil, err
	}

	today := startOfDay(now.UTC())
	week := startOfWeek(today)

	return func(t *entsql.SelectTable) []*entsql.Predicate {
		preds := make([]*entsql.Predicate, 0, len(valid))
		for _, c := range valid {
			col := t.C(string(c.Field))
			switch c.Operator {
			case OpEquals:
				preds = append(preds, entsql.EQ(col, c.Value))
			case OpNotEquals:
				preds = append(preds, entsql.NEQ(col, c.Value))
			case OpContains:
				preds = append(preds, entsql.ContainsFold(col, c.Value))
			case OpToday:
				preds = append(preds, entsql.GTE(col, today), entsql.LT(col, today.AddDate(0, 0, 1)))
			case OpThisWeek:
				preds = append(preds, entsql.GTE(col, week), entsql.LT(col, week.AddDate(0, 0, 7)))
			}
		}
		return preds
	}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfWeek returns the Monday of the week containing day.
func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
