package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recognized reagent field names for partial updates.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldForm        = "form"
	FieldHazardClass = "hazard_class"
	FieldReceivedAt  = "received_at"
	FieldExpiresAt   = "expires_at"
	FieldStorageID   = "storage_id"
	FieldStock       = "stock"
)

// ReagentFields lists the field names ApplyReagentFields recognizes.
var ReagentFields = []string{
	FieldName, FieldDescription, FieldForm, FieldHazardClass,
	FieldReceivedAt, FieldExpiresAt, FieldStorageID, FieldStock,
}

// DateLayout is the calendar date format accepted for reagent dates.
const DateLayout = "2006-01-02"

// FilterReagentFields keeps only recognized field names. Unknown names are
// dropped silently rather than rejected.
func FilterReagentFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, name := range ReagentFields {
		if v, ok := fields[name]; ok {
			out[name] = v
		}
	}
	return out
}

// ApplyReagentFields applies a partial update to r. Unknown field names are
// ignored; values of the wrong type produce a ValidationError and leave r
// untouched.
func ApplyReagentFields(r *Reagent, fields map[string]any) error {
	next := *r
	for name, value := range FilterReagentFields(fields) {
		var err error
		switch name {
		case FieldName:
			next.Name, err = asString(name, value)
			if err == nil && strings.TrimSpace(next.Name) == "" {
				err = Invalid(name, "must not be empty")
			}
		case FieldDescription:
			next.Description, err = asString(name, value)
		case FieldForm:
			var s string
			s, err = asString(name, value)
			next.Form = Form(strings.ToLower(strings.TrimSpace(s)))
		case FieldHazardClass:
			next.HazardClass, err = asString(name, value)
		case FieldReceivedAt:
			next.ReceivedAt, err = asDate(name, value)
		case FieldExpiresAt:
			next.ExpiresAt, err = asDate(name, value)
		case FieldStorageID:
			next.StorageID, err = asString(name, value)
		case FieldStock:
			next.Stock, err = asInt(name, value)
			if err == nil && next.Stock < 0 {
				err = Invalid(name, "must not be negative")
			}
		}
		if err != nil {
			return err
		}
	}
	*r = next
	return nil
}

func asString(field string, v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", Invalid(field, "expected text, got %T", v)
}

func asInt(field string, v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, Invalid(field, "expected a whole number, got %v", t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, Invalid(field, "expected a whole number, got %q", t)
		}
		return n, nil
	}
	return 0, Invalid(field, "expected a whole number, got %T", v)
}

func asDate(field string, v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		u := t.UTC()
		return &u, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		u := t.UTC()
		return &u, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		parsed, err := time.Parse(DateLayout, strings.TrimSpace(t))
		if err != nil {
			return nil, Invalid(field, "expected date as YYYY-MM-DD, got %q", t)
		}
		return &parsed, nil
	}
	return nil, Invalid(field, "expected a date, got %T", v)
}
