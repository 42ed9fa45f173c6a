package memory

import (
	"time"

	"labstock/pkg/domain"
)

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	transactionView
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) requireStorage(id string) error {
	if _, ok := tx.state.storages[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityStorage, ID: id}
	}
	return nil
}

func (tx *transaction) requireReagent(id string) error {
	if _, ok := tx.state.reagents[id]; !ok {
		return domain.NotFoundError{Entity: domain.EntityReagent, ID: id}
	}
	return nil
}

// CreateStorage stores a new storage location.
func (tx *transaction) CreateStorage(s Storage) (Storage, error) {
	if s.ID == "" {
		s.ID = newID()
	}
	if _, exists := tx.state.storages[s.ID]; exists {
		return Storage{}, domain.Conflict("storage %q already exists", s.ID)
	}
	if err := domain.ValidateStorage(s); err != nil {
		return Storage{}, err
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.storages[s.ID] = s
	tx.recordChange(Change{Entity: domain.EntityStorage, Action: domain.ActionCreate, After: s})
	return s, nil
}

// UpdateStorage mutates an existing storage location.
func (tx *transaction) UpdateStorage(id string, mutator func(*Storage) error) (Storage, error) {
	current, ok := tx.state.storages[id]
	if !ok {
		return Storage{}, domain.NotFoundError{Entity: domain.EntityStorage, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Storage{}, err
	}
	if err := domain.ValidateStorage(current); err != nil {
		return Storage{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.storages[id] = current
	tx.recordChange(Change{Entity: domain.EntityStorage, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteStorage removes an empty storage location.
func (tx *transaction) DeleteStorage(id string) error {
	current, ok := tx.state.storages[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityStorage, ID: id}
	}
	held := 0
	for _, r := range tx.state.reagents {
		if r.StorageID == id {
			held++
		}
	}
	if held > 0 {
		return domain.Conflict("storage %q still holds %d reagent(s)", id, held)
	}
	delete(tx.state.storages, id)
	tx.recordChange(Change{Entity: domain.EntityStorage, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateReagent stores a new reagent in an existing storage location.
func (tx *transaction) CreateReagent(r Reagent) (Reagent, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if _, exists := tx.state.reagents[r.ID]; exists {
		return Reagent{}, domain.Conflict("reagent %q already exists", r.ID)
	}
	if err := domain.ValidateReagent(r); err != nil {
		return Reagent{}, err
	}
	if err := tx.requireStorage(r.StorageID); err != nil {
		return Reagent{}, err
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.reagents[r.ID] = cloneReagent(r)
	tx.recordChange(Change{Entity: domain.EntityReagent, Action: domain.ActionCreate, After: cloneReagent(r)})
	return cloneReagent(r), nil
}

// UpdateReagent mutates an existing reagent.
func (tx *transaction) UpdateReagent(id string, mutator func(*Reagent) error) (Reagent, error) {
	stored, ok := tx.state.reagents[id]
	if !ok {
		return Reagent{}, domain.NotFoundError{Entity: domain.EntityReagent, ID: id}
	}
	before := cloneReagent(stored)
	current := cloneReagent(stored)
	if err := mutator(&current); err != nil {
		return Reagent{}, err
	}
	if err := domain.ValidateReagent(current); err != nil {
		return Reagent{}, err
	}
	if err := tx.requireStorage(current.StorageID); err != nil {
		return Reagent{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.reagents[id] = cloneReagent(current)
	tx.recordChange(Change{Entity: domain.EntityReagent, Action: domain.ActionUpdate, Before: before, After: cloneReagent(current)})
	return cloneReagent(current), nil
}

// DeleteReagent removes a reagent that no usage record references.
func (tx *transaction) DeleteReagent(id string) error {
	current, ok := tx.state.reagents[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityReagent, ID: id}
	}
	refs := 0
	for _, u := range tx.state.usages {
		if u.ReagentID == id {
			refs++
		}
	}
	if refs > 0 {
		return domain.Conflict("reagent %q still referenced by %d usage record(s)", id, refs)
	}
	delete(tx.state.reagents, id)
	tx.recordChange(Change{Entity: domain.EntityReagent, Action: domain.ActionDelete, Before: cloneReagent(current)})
	return nil
}

// CreateUsage stores a new usage record. Stock is not touched here.
func (tx *transaction) CreateUsage(u UsageRecord) (UsageRecord, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if _, exists := tx.state.usages[u.ID]; exists {
		return UsageRecord{}, domain.Conflict("usage %q already exists", u.ID)
	}
	if err := domain.ValidateUsage(u); err != nil {
		return UsageRecord{}, err
	}
	if err := tx.requireReagent(u.ReagentID); err != nil {
		return UsageRecord{}, err
	}
	u.UsedAt = tx.usedAt(u.UsedAt)
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.usages[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityUsage, Action: domain.ActionCreate, After: u})
	return u, nil
}

// UpdateUsage mutates an existing usage record.
func (tx *transaction) UpdateUsage(id string, mutator func(*UsageRecord) error) (UsageRecord, error) {
	current, ok := tx.state.usages[id]
	if !ok {
		return UsageRecord{}, domain.NotFoundError{Entity: domain.EntityUsage, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return UsageRecord{}, err
	}
	if err := domain.ValidateUsage(current); err != nil {
		return UsageRecord{}, err
	}
	if err := tx.requireReagent(current.ReagentID); err != nil {
		return UsageRecord{}, err
	}
	current.ID = id
	current.UsedAt = tx.usedAt(current.UsedAt)
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.usages[id] = current
	tx.recordChange(Change{Entity: domain.EntityUsage, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteUsage removes a usage record. The reagent stock is left as is.
func (tx *transaction) DeleteUsage(id string) error {
	current, ok := tx.state.usages[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUsage, ID: id}
	}
	delete(tx.state.usages, id)
	tx.recordChange(Change{Entity: domain.EntityUsage, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) usedAt(t time.Time) time.Time {
	if t.IsZero() {
		return tx.now
	}
	return t.UTC().Truncate(time.Microsecond)
}

// CreateUser stores a new user with a unique username.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == "" {
		u.ID = newID()
	}
	if _, exists := tx.state.users[u.ID]; exists {
		return User{}, domain.Conflict("user %q already exists", u.ID)
	}
	if err := domain.ValidateUser(u); err != nil {
		return User{}, err
	}
	if _, taken, _ := tx.FindUserByUsername(u.Username); taken {
		return User{}, domain.Conflict("username %q is taken", u.Username)
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = u
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: u})
	return u, nil
}

// UpdateUser mutates an existing user.
func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	if err := domain.ValidateUser(current); err != nil {
		return User{}, err
	}
	if other, taken, _ := tx.FindUserByUsername(current.Username); taken && other.ID != id {
		return User{}, domain.Conflict("username %q is taken", current.Username)
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.users[id] = current
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteUser removes a user. Usage records keep their free-text user name.
func (tx *transaction) DeleteUser(id string) error {
	current, ok := tx.state.users[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	delete(tx.state.users, id)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionDelete, Before: current})
	return nil
}

// EnsureSupportingMaterial returns the material matching name, creating it
// when no case-insensitive match exists.
func (tx *transaction) EnsureSupportingMaterial(name string) (SupportingMaterial, error) {
	name = domain.MaterialName(name)
	if name == "" {
		return SupportingMaterial{}, domain.Invalid("name", "must not be empty")
	}
	key := domain.MaterialKey(name)
	for _, m := range tx.state.materials {
		if domain.MaterialKey(m.Name) == key {
			return m, nil
		}
	}
	m := SupportingMaterial{Base: domain.Base{ID: newID(), CreatedAt: tx.now, UpdatedAt: tx.now}, Name: name}
	tx.state.materials[m.ID] = m
	tx.recordChange(Change{Entity: domain.EntitySupportingMaterial, Action: domain.ActionCreate, After: m})
	return m, nil
}

// DeleteSupportingMaterial removes a material tag.
func (tx *transaction) DeleteSupportingMaterial(id string) error {
	current, ok := tx.state.materials[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySupportingMaterial, ID: id}
	}
	delete(tx.state.materials, id)
	tx.recordChange(Change{Entity: domain.EntitySupportingMaterial, Action: domain.ActionDelete, Before: current})
	return nil
}
