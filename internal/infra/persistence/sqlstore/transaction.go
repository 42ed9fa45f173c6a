package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"labstock/pkg/domain"
)

// transaction applies mutations to an open SQL transaction and records the
// changes handed to the rules engine.
type transaction struct {
	view
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) mustAffect(res sql.Result, entity domain.EntityType, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

func (tx *transaction) requireStorage(id string) error {
	_, ok, err := tx.FindStorage(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityStorage, ID: id}
	}
	return nil
}

func (tx *transaction) requireReagent(id string) error {
	_, ok, err := tx.FindReagent(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityReagent, ID: id}
	}
	return nil
}

func (tx *transaction) exists(table, id string) (bool, error) {
	n, err := tx.count(`SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id)
	return n > 0, err
}

// CreateStorage inserts a new storage location.
func (tx *transaction) CreateStorage(s domain.Storage) (domain.Storage, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	} else if ok, err := tx.exists("storages", s.ID); err != nil || ok {
		return domain.Storage{}, existsErr(err, "storage", s.ID)
	}
	if err := domain.ValidateStorage(s); err != nil {
		return domain.Storage{}, err
	}
	s.CreatedAt, s.UpdatedAt = tx.now, tx.now
	if _, err := tx.exec(`INSERT INTO storages (`+storageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Name, s.Description, s.Capacity, timeArg(s.CreatedAt), timeArg(s.UpdatedAt)); err != nil {
		return domain.Storage{}, fmt.Errorf("insert storage: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityStorage, Action: domain.ActionCreate, After: s})
	return s, nil
}

// UpdateStorage mutates an existing storage location.
func (tx *transaction) UpdateStorage(id string, mutator func(*domain.Storage) error) (domain.Storage, error) {
	before, ok, err := tx.FindStorage(id)
	if err != nil {
		return domain.Storage{}, err
	}
	if !ok {
		return domain.Storage{}, domain.NotFoundError{Entity: domain.EntityStorage, ID: id}
	}
	current := before
	if err := mutator(&current); err != nil {
		return domain.Storage{}, err
	}
	if err := domain.ValidateStorage(current); err != nil {
		return domain.Storage{}, err
	}
	current.ID, current.CreatedAt, current.UpdatedAt = id, before.CreatedAt, tx.now
	if _, err := tx.exec(`UPDATE storages SET name = ?, description = ?, capacity = ?, updated_at = ? WHERE id = ?`,
		current.Name, current.Description, current.Capacity, timeArg(current.UpdatedAt), id); err != nil {
		return domain.Storage{}, fmt.Errorf("update storage: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityStorage, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteStorage removes an empty storage location.
func (tx *transaction) DeleteStorage(id string) error {
	before, ok, err := tx.FindStorage(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityStorage, ID: id}
	}
	held, err := tx.count(`SELECT COUNT(*) FROM reagents WHERE storage_id = ?`, id)
	if err != nil {
		return err
	}
	if held > 0 {
		return domain.Conflict("storage %q still holds %d reagent(s)", id, held)
	}
	if _, err := tx.exec(`DELETE FROM storages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete storage: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityStorage, Action: domain.ActionDelete, Before: before})
	return nil
}

func reagentArgs(r domain.Reagent) []any {
	return []any{
		r.Name, r.Description, string(r.Form), r.HazardClass,
		nullTimeArg(r.ReceivedAt), nullTimeArg(r.ExpiresAt),
		r.Stock, r.StorageID, nullStringArg(r.ImageKey), nullStringArg(r.SDSKey),
	}
}

// CreateReagent inserts a new reagent into an existing storage location.
func (tx *transaction) CreateReagent(r domain.Reagent) (domain.Reagent, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	} else if ok, err := tx.exists("reagents", r.ID); err != nil || ok {
		return domain.Reagent{}, existsErr(err, "reagent", r.ID)
	}
	if err := domain.ValidateReagent(r); err != nil {
		return domain.Reagent{}, err
	}
	if err := tx.requireStorage(r.StorageID); err != nil {
		return domain.Reagent{}, err
	}
	r.ReceivedAt, r.ExpiresAt = normalizeTime(r.ReceivedAt), normalizeTime(r.ExpiresAt)
	r.CreatedAt, r.UpdatedAt = tx.now, tx.now
	args := append([]any{r.ID}, reagentArgs(r)...)
	args = append(args, timeArg(r.CreatedAt), timeArg(r.UpdatedAt))
	if _, err := tx.exec(`INSERT INTO reagents (`+reagentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
		return domain.Reagent{}, fmt.Errorf("insert reagent: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityReagent, Action: domain.ActionCreate, After: r})
	return r, nil
}

// UpdateReagent mutates an existing reagent.
func (tx *transaction) UpdateReagent(id string, mutator func(*domain.Reagent) error) (domain.Reagent, error) {
	before, ok, err := tx.FindReagent(id)
	if err != nil {
		return domain.Reagent{}, err
	}
	if !ok {
		return domain.Reagent{}, domain.NotFoundError{Entity: domain.EntityReagent, ID: id}
	}
	current := before.Clone()
	if err := mutator(&current); err != nil {
		return domain.Reagent{}, err
	}
	if err := domain.ValidateReagent(current); err != nil {
		return domain.Reagent{}, err
	}
	if err := tx.requireStorage(current.StorageID); err != nil {
		return domain.Reagent{}, err
	}
	current.ID, current.CreatedAt, current.UpdatedAt = id, before.CreatedAt, tx.now
	current.ReceivedAt, current.ExpiresAt = normalizeTime(current.ReceivedAt), normalizeTime(current.ExpiresAt)
	args := append(reagentArgs(current), timeArg(current.UpdatedAt), id)
	if _, err := tx.exec(`UPDATE reagents SET name = ?, description = ?, form = ?, hazard_class = ?, received_at = ?, expires_at = ?,
		stock = ?, storage_id = ?, image_key = ?, sds_key = ?, updated_at = ? WHERE id = ?`, args...); err != nil {
		return domain.Reagent{}, fmt.Errorf("update reagent: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityReagent, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteReagent removes a reagent that no usage record references.
func (tx *transaction) DeleteReagent(id string) error {
	before, ok, err := tx.FindReagent(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityReagent, ID: id}
	}
	refs, err := tx.count(`SELECT COUNT(*) FROM usages WHERE reagent_id = ?`, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return domain.Conflict("reagent %q still referenced by %d usage record(s)", id, refs)
	}
	if _, err := tx.exec(`DELETE FROM reagents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete reagent: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityReagent, Action: domain.ActionDelete, Before: before})
	return nil
}

// CreateUsage inserts a new usage record. Stock is not touched here.
func (tx *transaction) CreateUsage(u domain.UsageRecord) (domain.UsageRecord, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if ok, err := tx.exists("usages", u.ID); err != nil || ok {
		return domain.UsageRecord{}, existsErr(err, "usage", u.ID)
	}
	if err := domain.ValidateUsage(u); err != nil {
		return domain.UsageRecord{}, err
	}
	if err := tx.requireReagent(u.ReagentID); err != nil {
		return domain.UsageRecord{}, err
	}
	u.UsedAt = tx.usedAt(u.UsedAt)
	u.CreatedAt, u.UpdatedAt = tx.now, tx.now
	if _, err := tx.exec(`INSERT INTO usages (`+usageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ReagentID, timeArg(u.UsedAt), u.Amount, u.UserName, u.Note, timeArg(u.CreatedAt), timeArg(u.UpdatedAt)); err != nil {
		return domain.UsageRecord{}, fmt.Errorf("insert usage: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityUsage, Action: domain.ActionCreate, After: u})
	return u, nil
}

// UpdateUsage mutates an existing usage record.
func (tx *transaction) UpdateUsage(id string, mutator func(*domain.UsageRecord) error) (domain.UsageRecord, error) {
	before, ok, err := tx.FindUsage(id)
	if err != nil {
		return domain.UsageRecord{}, err
	}
	if !ok {
		return domain.UsageRecord{}, domain.NotFoundError{Entity: domain.EntityUsage, ID: id}
	}
	current := before
	if err := mutator(&current); err != nil {
		return domain.UsageRecord{}, err
	}
	if err := domain.ValidateUsage(current); err != nil {
		return domain.UsageRecord{}, err
	}
	if err := tx.requireReagent(current.ReagentID); err != nil {
		return domain.UsageRecord{}, err
	}
	current.ID, current.CreatedAt, current.UpdatedAt = id, before.CreatedAt, tx.now
	current.UsedAt = tx.usedAt(current.UsedAt)
	if _, err := tx.exec(`UPDATE usages SET reagent_id = ?, used_at = ?, amount = ?, user_name = ?, note = ?, updated_at = ? WHERE id = ?`,
		current.ReagentID, timeArg(current.UsedAt), current.Amount, current.UserName, current.Note, timeArg(current.UpdatedAt), id); err != nil {
		return domain.UsageRecord{}, fmt.Errorf("update usage: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityUsage, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteUsage removes a usage record. The reagent stock is left as is.
func (tx *transaction) DeleteUsage(id string) error {
	before, ok, err := tx.FindUsage(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUsage, ID: id}
	}
	res, err := tx.exec(`DELETE FROM usages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete usage: %w", err)
	}
	if err := tx.mustAffect(res, domain.EntityUsage, id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityUsage, Action: domain.ActionDelete, Before: before})
	return nil
}

func (tx *transaction) usedAt(t time.Time) time.Time {
	if t.IsZero() {
		return tx.now
	}
	return t.UTC().Truncate(time.Microsecond)
}

// CreateUser inserts a user with a unique username.
func (tx *transaction) CreateUser(u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if ok, err := tx.exists("users", u.ID); err != nil || ok {
		return domain.User{}, existsErr(err, "user", u.ID)
	}
	if err := domain.ValidateUser(u); err != nil {
		return domain.User{}, err
	}
	if _, taken, err := tx.FindUserByUsername(u.Username); err != nil {
		return domain.User{}, err
	} else if taken {
		return domain.User{}, domain.Conflict("username %q is taken", u.Username)
	}
	u.CreatedAt, u.UpdatedAt = tx.now, tx.now
	if _, err := tx.exec(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.FirstName, u.LastName, u.Password, u.Active, timeArg(u.CreatedAt), timeArg(u.UpdatedAt)); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: u})
	return u, nil
}

// UpdateUser mutates an existing user.
func (tx *transaction) UpdateUser(id string, mutator func(*domain.User) error) (domain.User, error) {
	before, ok, err := tx.FindUser(id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	current := before
	if err := mutator(&current); err != nil {
		return domain.User{}, err
	}
	if err := domain.ValidateUser(current); err != nil {
		return domain.User{}, err
	}
	if other, taken, err := tx.FindUserByUsername(current.Username); err != nil {
		return domain.User{}, err
	} else if taken && other.ID != id {
		return domain.User{}, domain.Conflict("username %q is taken", current.Username)
	}
	current.ID, current.CreatedAt, current.UpdatedAt = id, before.CreatedAt, tx.now
	if _, err := tx.exec(`UPDATE users SET username = ?, first_name = ?, last_name = ?, password = ?, active = ?, updated_at = ? WHERE id = ?`,
		current.Username, current.FirstName, current.LastName, current.Password, current.Active, timeArg(current.UpdatedAt), id); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteUser removes a user. Usage records keep their free-text user name.
func (tx *transaction) DeleteUser(id string) error {
	before, ok, err := tx.FindUser(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	if _, err := tx.exec(`DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityUser, Action: domain.ActionDelete, Before: before})
	return nil
}

// EnsureSupportingMaterial returns the material matching name, inserting it
// when no case-insensitive match exists.
func (tx *transaction) EnsureSupportingMaterial(name string) (domain.SupportingMaterial, error) {
	name = domain.MaterialName(name)
	if name == "" {
		return domain.SupportingMaterial{}, domain.Invalid("name", "must not be empty")
	}
	key := domain.MaterialKey(name)
	if existing, ok, err := tx.findMaterialByKey(key); err != nil || ok {
		return existing, err
	}
	m := domain.SupportingMaterial{Base: domain.Base{ID: uuid.NewString(), CreatedAt: tx.now, UpdatedAt: tx.now}, Name: name}
	if _, err := tx.exec(`INSERT INTO supporting_materials (id, name, name_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, key, timeArg(m.CreatedAt), timeArg(m.UpdatedAt)); err != nil {
		return domain.SupportingMaterial{}, fmt.Errorf("insert supporting material: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntitySupportingMaterial, Action: domain.ActionCreate, After: m})
	return m, nil
}

// DeleteSupportingMaterial removes a material tag.
func (tx *transaction) DeleteSupportingMaterial(id string) error {
	before, ok, err := find(tx.view, scanMaterial, `SELECT `+materialColumns+` FROM supporting_materials WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySupportingMaterial, ID: id}
	}
	if _, err := tx.exec(`DELETE FROM supporting_materials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete supporting material: %w", err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntitySupportingMaterial, Action: domain.ActionDelete, Before: before})
	return nil
}

func existsErr(err error, entity, id string) error {
	if err != nil {
		return err
	}
	return domain.Conflict("%s %q already exists", entity, id)
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}
