package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"fraudwallet-api/internal/models"
)

// In-memory repository implementations. They back the unit tests and keep the
// engine runnable without MongoDB or Redis.

type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[int64]*models.Account
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		accounts: make(map[int64]*models.Account),
	}
}

func (r *MemoryAccountRepository) Create(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.AccountID]; ok {
		return models.ErrAccountAlreadyExists
	}

	account.ID = primitive.NewObjectID()
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()

	clone := *account
	r.accounts[account.AccountID] = &clone
	return nil
}

func (r *MemoryAccountRepository) GetByAccountID(_ context.Context, accountID int64) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return nil, models.ErrAccountNotFound
	}

	clone := *account
	return &clone, nil
}

func (r *MemoryAccountRepository) Update(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.AccountID]; !ok {
		return models.ErrAccountNotFound
	}

	account.UpdatedAt = time.Now()
	clone := *account
	r.accounts[account.AccountID] = &clone
	return nil
}

func (r *MemoryAccountRepository) UpdateBalance(_ context.Context, accountID int64, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}

	account.Balance = balance
	account.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryAccountRepository) SetFreezeState(_ context.Context, accountID int64, state string, frozenUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}

	account.FreezeState = state
	if frozenUntil != nil {
		until := *frozenUntil
		account.FrozenUntil = &until
	} else {
		account.FrozenUntil = nil
	}
	account.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryAccountRepository) UpdateLimits(_ context.Context, accountID int64, limits models.PolicyLimits, freezeDurationMinutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return models.ErrAccountNotFound
	}

	account.Limits = limits
	account.FreezeDurationMinutes = freezeDurationMinutes
	account.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryAccountRepository) List(_ context.Context, limit, offset int) ([]*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]*models.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		clone := *account
		accounts = append(accounts, &clone)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountID < accounts[j].AccountID
	})

	return paginate(accounts, limit, offset), nil
}

type MemoryTransactionRepository struct {
	mu   sync.RWMutex
	txns map[string]*models.Transaction
}

func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{
		txns: make(map[string]*models.Transaction),
	}
}

func cloneTxn(txn *models.Transaction) *models.Transaction {
	clone := *txn
	clone.RiskFactors = append([]string(nil), txn.RiskFactors...)
	clone.Findings = append([]models.RiskFinding(nil), txn.Findings...)
	return &clone
}

func (r *MemoryTransactionRepository) Create(_ context.Context, txn *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn.ID = primitive.NewObjectID()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	txn.UpdatedAt = time.Now()

	r.txns[txn.TxnID] = cloneTxn(txn)
	return nil
}

func (r *MemoryTransactionRepository) GetByTxnID(_ context.Context, txnID string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	txn, ok := r.txns[txnID]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}

	return cloneTxn(txn), nil
}

func (r *MemoryTransactionRepository) Update(_ context.Context, txn *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.txns[txn.TxnID]; !ok {
		return models.ErrTransactionNotFound
	}

	txn.UpdatedAt = time.Now()
	r.txns[txn.TxnID] = cloneTxn(txn)
	return nil
}

func (r *MemoryTransactionRepository) ListByAccount(_ context.Context, accountID int64, filter TransactionFilter) ([]*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var txns []*models.Transaction
	for _, txn := range r.txns {
		if txn.AccountID != accountID {
			continue
		}
		if filter.Status != "" && txn.Status != filter.Status {
			continue
		}
		if filter.RiskLevel != "" && txn.RiskLevel != filter.RiskLevel {
			continue
		}
		if filter.Direction != "" && txn.Direction != filter.Direction {
			continue
		}
		if filter.From != nil && txn.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && txn.CreatedAt.After(*filter.To) {
			continue
		}
		txns = append(txns, cloneTxn(txn))
	}
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})

	return paginate(txns, filter.Limit, filter.Offset), nil
}

func (r *MemoryTransactionRepository) CountCompletedInRange(_ context.Context, accountID int64, from, to time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, txn := range r.txns {
		if txn.AccountID != accountID || txn.Status != models.TxnStatusCompleted {
			continue
		}
		if txn.CreatedAt.Before(from) || txn.CreatedAt.After(to) {
			continue
		}
		count++
	}

	return count, nil
}

func (r *MemoryTransactionRepository) LastCompletedWithLocation(_ context.Context, accountID int64) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.Transaction
	for _, txn := range r.txns {
		if txn.AccountID != accountID || txn.Status != models.TxnStatusCompleted {
			continue
		}
		if txn.LocationName == "" {
			continue
		}
		if latest == nil || txn.CreatedAt.After(latest.CreatedAt) {
			latest = txn
		}
	}

	if latest == nil {
		return nil, nil
	}
	return cloneTxn(latest), nil
}

func (r *MemoryTransactionRepository) ListCompletedDebits(_ context.Context, accountID int64) ([]*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var txns []*models.Transaction
	for _, txn := range r.txns {
		if txn.AccountID != accountID {
			continue
		}
		if txn.Status != models.TxnStatusCompleted || txn.Direction != models.TxnDirectionDebit {
			continue
		}
		txns = append(txns, cloneTxn(txn))
	}
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].CreatedAt.Before(txns[j].CreatedAt)
	})

	return txns, nil
}

func (r *MemoryTransactionRepository) ListPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var txns []*models.Transaction
	for _, txn := range r.txns {
		if txn.Status != models.TxnStatusPending {
			continue
		}
		if !txn.CreatedAt.Before(cutoff) {
			continue
		}
		txns = append(txns, cloneTxn(txn))
	}
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].CreatedAt.Before(txns[j].CreatedAt)
	})

	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}

	return txns, nil
}

func (r *MemoryTransactionRepository) CountByStatus(_ context.Context, accountID int64) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, txn := range r.txns {
		if txn.AccountID == accountID {
			counts[txn.Status]++
		}
	}

	return counts, nil
}

func (r *MemoryTransactionRepository) CountByRiskLevel(_ context.Context, accountID int64) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, txn := range r.txns {
		if txn.AccountID == accountID && txn.RiskLevel != "" {
			counts[txn.RiskLevel]++
		}
	}

	return counts, nil
}

type MemoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[int64]map[string]*models.KnownDevice
}

func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{
		devices: make(map[int64]map[string]*models.KnownDevice),
	}
}

func (r *MemoryDeviceRepository) Exists(_ context.Context, accountID int64, fingerprint string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.devices[accountID][fingerprint]
	return ok, nil
}

func (r *MemoryDeviceRepository) Upsert(_ context.Context, device *models.KnownDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byAccount, ok := r.devices[device.AccountID]
	if !ok {
		byAccount = make(map[string]*models.KnownDevice)
		r.devices[device.AccountID] = byAccount
	}

	if existing, ok := byAccount[device.DeviceFingerprint]; ok {
		existing.LastUsed = device.LastUsed
		return nil
	}

	clone := *device
	byAccount[device.DeviceFingerprint] = &clone
	return nil
}

func (r *MemoryDeviceRepository) List(_ context.Context, accountID int64) ([]*models.KnownDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []*models.KnownDevice
	for _, device := range r.devices[accountID] {
		clone := *device
		devices = append(devices, &clone)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastUsed.After(devices[j].LastUsed)
	})

	return devices, nil
}

func (r *MemoryDeviceRepository) Delete(_ context.Context, accountID int64, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[accountID][fingerprint]; !ok {
		return mongo.ErrNoDocuments
	}

	delete(r.devices[accountID], fingerprint)
	return nil
}

type MemoryLocationRepository struct {
	mu        sync.RWMutex
	locations map[int64]map[string]*models.KnownLocation
}

func NewMemoryLocationRepository() *MemoryLocationRepository {
	return &MemoryLocationRepository{
		locations: make(map[int64]map[string]*models.KnownLocation),
	}
}

func (r *MemoryLocationRepository) Exists(_ context.Context, accountID int64, locationName string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.locations[accountID][locationName]
	return ok, nil
}

func (r *MemoryLocationRepository) GetByName(_ context.Context, accountID int64, locationName string) (*models.KnownLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	location, ok := r.locations[accountID][locationName]
	if !ok {
		return nil, nil
	}

	clone := *location
	return &clone, nil
}

func (r *MemoryLocationRepository) Upsert(_ context.Context, location *models.KnownLocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byAccount, ok := r.locations[location.AccountID]
	if !ok {
		byAccount = make(map[string]*models.KnownLocation)
		r.locations[location.AccountID] = byAccount
	}

	if existing, ok := byAccount[location.LocationName]; ok {
		existing.LastUsed = location.LastUsed
		if location.Latitude != nil && location.Longitude != nil {
			existing.Latitude = location.Latitude
			existing.Longitude = location.Longitude
		}
		return nil
	}

	clone := *location
	byAccount[location.LocationName] = &clone
	return nil
}

func (r *MemoryLocationRepository) List(_ context.Context, accountID int64) ([]*models.KnownLocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var locations []*models.KnownLocation
	for _, location := range r.locations[accountID] {
		clone := *location
		locations = append(locations, &clone)
	}
	sort.Slice(locations, func(i, j int) bool {
		return locations[i].LastUsed.After(locations[j].LastUsed)
	})

	return locations, nil
}

func (r *MemoryLocationRepository) Delete(_ context.Context, accountID int64, locationName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locations[accountID][locationName]; !ok {
		return mongo.ErrNoDocuments
	}

	delete(r.locations[accountID], locationName)
	return nil
}

type MemoryBaselineRepository struct {
	mu        sync.RWMutex
	baselines map[int64]*models.BehaviorBaseline
}

func NewMemoryBaselineRepository() *MemoryBaselineRepository {
	return &MemoryBaselineRepository{
		baselines: make(map[int64]*models.BehaviorBaseline),
	}
}

func (r *MemoryBaselineRepository) Get(_ context.Context, accountID int64) (*models.BehaviorBaseline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	baseline, ok := r.baselines[accountID]
	if !ok {
		return nil, nil
	}

	clone := *baseline
	return &clone, nil
}

func (r *MemoryBaselineRepository) Upsert(_ context.Context, baseline *models.BehaviorBaseline) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *baseline
	r.baselines[baseline.AccountID] = &clone
	return nil
}

func (r *MemoryBaselineRepository) ListAccountIDs(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.baselines))
	for id := range r.baselines {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

type MemoryAlertRepository struct {
	mu     sync.RWMutex
	alerts []*models.Alert
}

func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{}
}

func (r *MemoryAlertRepository) Create(_ context.Context, alert *models.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	alert.ID = primitive.NewObjectID()
	alert.CreatedAt = time.Now()

	clone := *alert
	r.alerts = append(r.alerts, &clone)
	return nil
}

func (r *MemoryAlertRepository) List(_ context.Context, accountID int64, filter AlertFilter) ([]*models.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var alerts []*models.Alert
	for _, alert := range r.alerts {
		if alert.AccountID != accountID {
			continue
		}
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		if filter.AlertType != "" && alert.AlertType != filter.AlertType {
			continue
		}
		if filter.UnresolvedOnly && alert.Resolved {
			continue
		}
		clone := *alert
		alerts = append(alerts, &clone)
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})

	return paginate(alerts, filter.Limit, filter.Offset), nil
}

func (r *MemoryAlertRepository) Resolve(_ context.Context, accountID int64, alertID primitive.ObjectID, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, alert := range r.alerts {
		if alert.ID == alertID && alert.AccountID == accountID && !alert.Resolved {
			alert.Resolve(note, time.Now())
			return nil
		}
	}

	return mongo.ErrNoDocuments
}

func (r *MemoryAlertRepository) ResolveAll(_ context.Context, accountID int64, note string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resolved := 0
	for _, alert := range r.alerts {
		if alert.AccountID == accountID && !alert.Resolved {
			alert.Resolve(note, time.Now())
			resolved++
		}
	}

	return resolved, nil
}

// LocalLockManager is the single-process AccountLockManager used in tests.
type LocalLockManager struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewLocalLockManager() *LocalLockManager {
	return &LocalLockManager{
		locks: make(map[int64]*sync.Mutex),
	}
}

func (m *LocalLockManager) WithAccountLock(ctx context.Context, accountID int64, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	return fn(ctx)
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
