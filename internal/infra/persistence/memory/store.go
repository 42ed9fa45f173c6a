// Package memory provides an in-memory implementation of the labstock
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"labstock/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Storage aliases domain.Storage for in-memory persistence operations.
	Storage = domain.Storage
	// Reagent aliases domain.Reagent.
	Reagent = domain.Reagent
	// UsageRecord aliases domain.UsageRecord.
	UsageRecord = domain.UsageRecord
	// User aliases domain.User.
	User = domain.User
	// SupportingMaterial aliases domain.SupportingMaterial.
	SupportingMaterial = domain.SupportingMaterial
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	storages  map[string]Storage
	reagents  map[string]Reagent
	usages    map[string]UsageRecord
	users     map[string]User
	materials map[string]SupportingMaterial
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Storages  map[string]Storage            `json:"storages"`
	Reagents  map[string]Reagent            `json:"reagents"`
	Usages    map[string]UsageRecord        `json:"usages"`
	Users     map[string]User               `json:"users"`
	Materials map[string]SupportingMaterial `json:"supporting_materials"`
}

func newMemoryState() memoryState {
	return memoryState{
		storages:  make(map[string]Storage),
		reagents:  make(map[string]Reagent),
		usages:    make(map[string]UsageRecord),
		users:     make(map[string]User),
		materials: make(map[string]SupportingMaterial),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.storages {
		cloned.storages[k] = v
	}
	for k, v := range s.reagents {
		cloned.reagents[k] = cloneReagent(v)
	}
	for k, v := range s.usages {
		cloned.usages[k] = v
	}
	for k, v := range s.users {
		cloned.users[k] = v
	}
	for k, v := range s.materials {
		cloned.materials[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Storages:  c.storages,
		Reagents:  c.reagents,
		Usages:    c.usages,
		Users:     c.users,
		Materials: c.materials,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState{
		storages:  s.Storages,
		reagents:  s.Reagents,
		usages:    s.Usages,
		users:     s.Users,
		materials: s.Materials,
	}.clone()
}

func cloneReagent(r Reagent) Reagent { return r.Clone() }

// Store provides an in-memory transactional store for the labstock domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithNowFunc overrides the clock used to stamp records.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy replaces the committed state only when fn succeeds and no
// rule reports a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn().UTC().Truncate(time.Microsecond),
	}
	tx.transactionView = transactionView{state: &tx.state}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.transactionView, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func newID() string { return uuid.NewString() }

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func (v transactionView) ListStorages() ([]Storage, error) {
	out := make([]Storage, 0, len(v.state.storages))
	for _, s := range v.state.storages {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return byName(out[i].Name, out[i].ID, out[j].Name, out[j].ID) })
	return out, nil
}

func (v transactionView) FindStorage(id string) (Storage, bool, error) {
	s, ok := v.state.storages[id]
	return s, ok, nil
}

func (v transactionView) ListReagents() ([]Reagent, error) {
	return v.reagents(func(Reagent) bool { return true }), nil
}

func (v transactionView) ListReagentsByStorage(storageID string) ([]Reagent, error) {
	return v.reagents(func(r Reagent) bool { return r.StorageID == storageID }), nil
}

func (v transactionView) reagents(keep func(Reagent) bool) []Reagent {
	out := make([]Reagent, 0, len(v.state.reagents))
	for _, r := range v.state.reagents {
		if keep(r) {
			out = append(out, cloneReagent(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return byName(out[i].Name, out[i].ID, out[j].Name, out[j].ID) })
	return out
}

func (v transactionView) FindReagent(id string) (Reagent, bool, error) {
	r, ok := v.state.reagents[id]
	if !ok {
		return Reagent{}, false, nil
	}
	return cloneReagent(r), true, nil
}

func (v transactionView) ListUsagesByReagent(reagentID string) ([]UsageRecord, error) {
	return v.usages(func(u UsageRecord) bool { return u.ReagentID == reagentID }), nil
}

// ListUsagesByUser matches the recorded user name exactly.
func (v transactionView) ListUsagesByUser(userName string) ([]UsageRecord, error) {
	return v.usages(func(u UsageRecord) bool { return u.UserName == userName }), nil
}

func (v transactionView) usages(keep func(UsageRecord) bool) []UsageRecord {
	out := make([]UsageRecord, 0)
	for _, u := range v.state.usages {
		if keep(u) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UsedAt.Equal(out[j].UsedAt) {
			return out[i].UsedAt.Before(out[j].UsedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v transactionView) FindUsage(id string) (UsageRecord, bool, error) {
	u, ok := v.state.usages[id]
	return u, ok, nil
}

func (v transactionView) ListUsers() ([]User, error) {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (v transactionView) FindUser(id string) (User, bool, error) {
	u, ok := v.state.users[id]
	return u, ok, nil
}

func (v transactionView) FindUserByUsername(username string) (User, bool, error) {
	for _, u := range v.state.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (v transactionView) ListSupportingMaterials() ([]SupportingMaterial, error) {
	out := make([]SupportingMaterial, 0, len(v.state.materials))
	for _, m := range v.state.materials {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return byName(domain.MaterialKey(out[i].Name), out[i].ID, domain.MaterialKey(out[j].Name), out[j].ID)
	})
	return out, nil
}

func byName(a, aID, b, bID string) bool {
	if a != b {
		return a < b
	}
	return aID < bID
}
