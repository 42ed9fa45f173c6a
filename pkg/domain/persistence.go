package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Find methods report a missing record
// with ok=false and a nil error.
type Transaction interface {
	TransactionView
	CreateStorage(Storage) (Storage, error)
	UpdateStorage(id string, mutator func(*Storage) error) (Storage, error)
	DeleteStorage(id string) error
	CreateReagent(Reagent) (Reagent, error)
	UpdateReagent(id string, mutator func(*Reagent) error) (Reagent, error)
	DeleteReagent(id string) error
	CreateUsage(UsageRecord) (UsageRecord, error)
	UpdateUsage(id string, mutator func(*UsageRecord) error) (UsageRecord, error)
	DeleteUsage(id string) error
	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	DeleteUser(id string) error
	EnsureSupportingMaterial(name string) (SupportingMaterial, error)
	DeleteSupportingMaterial(id string) error
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	RuleView
	ListUsagesByReagent(reagentID string) ([]UsageRecord, error)
	ListUsagesByUser(userName string) ([]UsageRecord, error)
	FindUsage(id string) (UsageRecord, bool, error)
	ListUsers() ([]User, error)
	FindUser(id string) (User, bool, error)
	FindUserByUsername(username string) (User, bool, error)
	ListSupportingMaterials() ([]SupportingMaterial, error)
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	Close() error
}
