// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by labstock.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence tables.
const (
	// EntityStorage identifies a storage location (rack) record.
	EntityStorage EntityType = "storage"
	// EntityReagent identifies a reagent record.
	EntityReagent EntityType = "reagent"
	// EntityUsage identifies a usage record.
	EntityUsage EntityType = "usage"
	// EntityUser identifies a user account record.
	EntityUser EntityType = "user"
	// EntitySupportingMaterial identifies a supporting material tag.
	EntitySupportingMaterial EntityType = "supporting_material"
)

// Form describes the physical form of a reagent.
type Form string

// Known reagent forms. Other values are stored verbatim.
const (
	FormSolid  Form = "solid"
	FormLiquid Form = "liquid"
	FormGas    Form = "gas"
	FormOther  Form = "other"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Storage is a physical location (rack, shelf, cabinet) grouping reagents.
type Storage struct {
	Base
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	// Capacity is the number of reagents the location is meant to hold; zero means unbounded.
	Capacity int `json:"capacity" yaml:"capacity"`
}

// Reagent is a chemical inventory item with a quantity on hand.
type Reagent struct {
	Base
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Form        Form       `json:"form,omitempty"`
	HazardClass string     `json:"hazard_class,omitempty"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Stock       int        `json:"stock"`
	StorageID   string     `json:"storage_id"`
	ImageKey    *string    `json:"image_key,omitempty"`
	SDSKey      *string    `json:"sds_key,omitempty"`
}

// Clone returns a copy that shares no pointers with r.
func (r Reagent) Clone() Reagent {
	cp := r
	cp.ReceivedAt = clonePtr(r.ReceivedAt)
	cp.ExpiresAt = clonePtr(r.ExpiresAt)
	cp.ImageKey = clonePtr(r.ImageKey)
	cp.SDSKey = clonePtr(r.SDSKey)
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// HasImage reports whether an image attachment is recorded.
func (r Reagent) HasImage() bool { return r.ImageKey != nil && *r.ImageKey != "" }

// HasSDS reports whether a safety data sheet attachment is recorded.
func (r Reagent) HasSDS() bool { return r.SDSKey != nil && *r.SDSKey != "" }

// UsageRecord is a logged consumption event against a reagent.
type UsageRecord struct {
	Base
	UsedAt    time.Time `json:"used_at"`
	Amount    int       `json:"amount"`
	UserName  string    `json:"user_name"`
	Note      string    `json:"note,omitempty"`
	ReagentID string    `json:"reagent_id"`
}

// User is a login identity.
type User struct {
	Base
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"-"`
	Active    bool   `json:"active"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// SupportingMaterial is a deduplicated named tag usable as a usage annotation.
type SupportingMaterial struct {
	Base
	Name string `json:"name"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking warn violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
