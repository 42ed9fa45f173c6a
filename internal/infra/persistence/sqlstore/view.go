package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"labstock/pkg/domain"
)

const (
	storageColumns  = `id, name, description, capacity, created_at, updated_at`
	reagentColumns  = `id, name, description, form, hazard_class, received_at, expires_at, stock, storage_id, image_key, sds_key, created_at, updated_at`
	usageColumns    = `id, reagent_id, used_at, amount, user_name, note, created_at, updated_at`
	userColumns     = `id, username, first_name, last_name, password, active, created_at, updated_at`
	materialColumns = `id, name, created_at, updated_at`
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// view answers read queries inside an open SQL transaction.
type view struct {
	ctx context.Context
	q   queryer
	d   Dialect
}

func (v view) query(query string, args ...any) (*sql.Rows, error) {
	return v.q.QueryContext(v.ctx, v.d.Rebind(query), args...)
}

func (v view) queryRow(query string, args ...any) *sql.Row {
	return v.q.QueryRowContext(v.ctx, v.d.Rebind(query), args...)
}

func (v view) exec(query string, args ...any) (sql.Result, error) {
	return v.q.ExecContext(v.ctx, v.d.Rebind(query), args...)
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer func() { _ = rows.Close() }()
	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func list[T any](v view, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := v.query(query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scan)
}

func find[T any](v view, scan func(rowScanner) (T, error), query string, args ...any) (T, bool, error) {
	item, err := scan(v.queryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, false, nil
	}
	if err != nil {
		var zero T
		return zero, false, err
	}
	return item, true, nil
}

func scanStorage(row rowScanner) (domain.Storage, error) {
	var s domain.Storage
	var created, updated dbTime
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Capacity, &created, &updated); err != nil {
		return domain.Storage{}, err
	}
	s.CreatedAt, s.UpdatedAt = created.Time, updated.Time
	return s, nil
}

func scanReagent(row rowScanner) (domain.Reagent, error) {
	var r domain.Reagent
	var form string
	var received, expires, created, updated dbTime
	var image, sds sql.NullString
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &form, &r.HazardClass, &received, &expires,
		&r.Stock, &r.StorageID, &image, &sds, &created, &updated); err != nil {
		return domain.Reagent{}, err
	}
	r.Form = domain.Form(form)
	r.ReceivedAt, r.ExpiresAt = received.ptr(), expires.ptr()
	r.ImageKey, r.SDSKey = stringPtr(image), stringPtr(sds)
	r.CreatedAt, r.UpdatedAt = created.Time, updated.Time
	return r, nil
}

func scanUsage(row rowScanner) (domain.UsageRecord, error) {
	var u domain.UsageRecord
	var used, created, updated dbTime
	if err := row.Scan(&u.ID, &u.ReagentID, &used, &u.Amount, &u.UserName, &u.Note, &created, &updated); err != nil {
		return domain.UsageRecord{}, err
	}
	u.UsedAt, u.CreatedAt, u.UpdatedAt = used.Time, created.Time, updated.Time
	return u, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var created, updated dbTime
	if err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Password, &u.Active, &created, &updated); err != nil {
		return domain.User{}, err
	}
	u.CreatedAt, u.UpdatedAt = created.Time, updated.Time
	return u, nil
}

func scanMaterial(row rowScanner) (domain.SupportingMaterial, error) {
	var m domain.SupportingMaterial
	var created, updated dbTime
	if err := row.Scan(&m.ID, &m.Name, &created, &updated); err != nil {
		return domain.SupportingMaterial{}, err
	}
	m.CreatedAt, m.UpdatedAt = created.Time, updated.Time
	return m, nil
}

func (v view) ListStorages() ([]domain.Storage, error) {
	return list(v, scanStorage, `SELECT `+storageColumns+` FROM storages ORDER BY name, id`)
}

func (v view) FindStorage(id string) (domain.Storage, bool, error) {
	return find(v, scanStorage, `SELECT `+storageColumns+` FROM storages WHERE id = ?`, id)
}

func (v view) ListReagents() ([]domain.Reagent, error) {
	return list(v, scanReagent, `SELECT `+reagentColumns+` FROM reagents ORDER BY name, id`)
}

func (v view) ListReagentsByStorage(storageID string) ([]domain.Reagent, error) {
	return list(v, scanReagent, `SELECT `+reagentColumns+` FROM reagents WHERE storage_id = ? ORDER BY name, id`, storageID)
}

func (v view) FindReagent(id string) (domain.Reagent, bool, error) {
	return find(v, scanReagent, `SELECT `+reagentColumns+` FROM reagents WHERE id = ?`, id)
}

func (v view) ListUsagesByReagent(reagentID string) ([]domain.UsageRecord, error) {
	return list(v, scanUsage, `SELECT `+usageColumns+` FROM usages WHERE reagent_id = ? ORDER BY used_at, id`, reagentID)
}

// ListUsagesByUser matches the recorded user name exactly.
func (v view) ListUsagesByUser(userName string) ([]domain.UsageRecord, error) {
	return list(v, scanUsage, `SELECT `+usageColumns+` FROM usages WHERE user_name = ? ORDER BY used_at, id`, userName)
}

func (v view) FindUsage(id string) (domain.UsageRecord, bool, error) {
	return find(v, scanUsage, `SELECT `+usageColumns+` FROM usages WHERE id = ?`, id)
}

func (v view) ListUsers() ([]domain.User, error) {
	return list(v, scanUser, `SELECT `+userColumns+` FROM users ORDER BY username`)
}

func (v view) FindUser(id string) (domain.User, bool, error) {
	return find(v, scanUser, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (v view) FindUserByUsername(username string) (domain.User, bool, error) {
	return find(v, scanUser, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (v view) ListSupportingMaterials() ([]domain.SupportingMaterial, error) {
	return list(v, scanMaterial, `SELECT `+materialColumns+` FROM supporting_materials ORDER BY name_key, id`)
}

func (v view) findMaterialByKey(key string) (domain.SupportingMaterial, bool, error) {
	return find(v, scanMaterial, `SELECT `+materialColumns+` FROM supporting_materials WHERE name_key = ?`, key)
}

func (v view) count(query string, args ...any) (int, error) {
	var n int
	if err := v.queryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
