package customersync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/manmanrai/limerime-vercel-api/internal/eligibility"
	"github.com/manmanrai/limerime-vercel-api/internal/platform/timeutil"
	"github.com/manmanrai/limerime-vercel-api/internal/profilefields"
	"github.com/manmanrai/limerime-vercel-api/internal/service/shopify"
)

// Slot is a metafield location and the type stored there.
type Slot struct {
	Namespace string
	Key       string
	Type      shopify.MetafieldType
}

// Fixed metafield slots.
var (
	SlotBirthDate   = Slot{Namespace: "facts", Key: "birth_date", Type: shopify.TypeDate}
	SlotAge         = Slot{Namespace: "custom", Key: "age", Type: shopify.TypeNumberInteger}
	SlotEligibility = Slot{Namespace: "over-30", Key: "over-30-key", Type: shopify.TypeJSON}
	SlotMzdao       = Slot{Namespace: "custom", Key: "mzdao", Type: shopify.TypeSingleLineText}
)

const dependentNamespace = "custom"

func (s Slot) String() string {
	return s.Namespace + "/" + s.Key
}

// Input builds the write payload for value.
func (s Slot) Input(value string) shopify.MetafieldInput {
	return shopify.MetafieldInput{Namespace: s.Namespace, Key: s.Key, Value: value, Type: s.Type}
}

// Matches reports whether m lives in this slot.
func (s Slot) Matches(m shopify.Metafield) bool {
	return m.Namespace == s.Namespace && m.Key == s.Key
}

// SlotFor returns the slot a non-fanned-out field is stored in. The customer's
// own birth date has no single slot; see PlanField.
func SlotFor(f profilefields.Field) (Slot, bool) {
	switch f.Kind {
	case profilefields.KindDependentName:
		return Slot{Namespace: dependentNamespace, Key: f.Name, Type: shopify.TypeSingleLineText}, true
	case profilefields.KindDependentRelationship:
		return Slot{Namespace: dependentNamespace, Key: f.Name, Type: shopify.TypeListSingleLineText}, true
	case profilefields.KindDependentBirthDate:
		return Slot{Namespace: dependentNamespace, Key: f.Name, Type: shopify.TypeDate}, true
	default:
		return Slot{}, false
	}
}

// OpKind is the kind of a planned metafield write.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
)

// Operation is one planned metafield write. Creates target the customer's
// metafield collection; updates target MetafieldID directly.
type Operation struct {
	Kind        OpKind
	Field       string
	CustomerID  string
	MetafieldID string
	Input       shopify.MetafieldInput
}

// Slot returns the slot the operation writes.
func (o Operation) Slot() Slot {
	return Slot{Namespace: o.Input.Namespace, Key: o.Input.Key, Type: o.Input.Type}
}

// PlanWrite decides between create and update for in. The first existing
// metafield with the same (namespace, key) is updated; otherwise a create is
// planned.
func PlanWrite(customerID string, in shopify.MetafieldInput, existing []shopify.Metafield) Operation {
	for _, m := range existing {
		if m.Namespace == in.Namespace && m.Key == in.Key {
			return Operation{Kind: OpUpdate, CustomerID: customerID, MetafieldID: m.ID, Input: in}
		}
	}
	return Operation{Kind: OpCreate, CustomerID: customerID, Input: in}
}

// PlanField turns one extracted field into the metafield inputs it is stored
// as. The customer's birth date fans out into the date and the age computed
// by eval. Dates that do not parse yield a KindMalformedInput error and no
// inputs.
func PlanField(f profilefields.Field, value string, eval *eligibility.Evaluator) ([]shopify.MetafieldInput, error) {
	switch f.Kind {
	case profilefields.KindSelfBirthDate:
		date, err := parseBirthDate(f.Name, value)
		if err != nil {
			return nil, err
		}
		age, err := eval.Age(date)
		if err != nil {
			return nil, &Error{Kind: KindMalformedInput, Field: f.Name, Err: err}
		}
		return []shopify.MetafieldInput{
			SlotBirthDate.Input(date),
			SlotAge.Input(strconv.Itoa(age)),
		}, nil

	case profilefields.KindDependentBirthDate:
		date, err := parseBirthDate(f.Name, value)
		if err != nil {
			return nil, err
		}
		slot, _ := SlotFor(f)
		return []shopify.MetafieldInput{slot.Input(date)}, nil

	case profilefields.KindDependentRelationship:
		slot, _ := SlotFor(f)
		return []shopify.MetafieldInput{slot.Input(relationshipList(value))}, nil

	case profilefields.KindDependentName:
		slot, _ := SlotFor(f)
		return []shopify.MetafieldInput{slot.Input(value)}, nil

	default:
		return nil, &Error{Kind: KindValidation, Field: f.Name, Err: fmt.Errorf("unsupported field kind %s", f.Kind)}
	}
}

// parseBirthDate normalizes value to the platform's YYYY-MM-DD date format.
func parseBirthDate(field, value string) (string, error) {
	d, err := timeutil.ParseDate(value)
	if err != nil {
		return "", &Error{Kind: KindMalformedInput, Field: field, Err: err}
	}
	return d.String(), nil
}

// relationshipList encodes value as a one-element JSON list, or an empty list
// when value is blank.
func relationshipList(value string) string {
	if strings.TrimSpace(value) == "" {
		return "[]"
	}
	data, _ := json.Marshal([]string{value})
	return string(data)
}
