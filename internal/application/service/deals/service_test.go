package deals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dealdesk/internal/application/service/commission"
	"dealdesk/internal/domain/entity/deals"
	"dealdesk/internal/domain/interfaces"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	deals    map[int64]*deals.Deal
	managers map[int64]*deals.Manager

	leadBuy  *deals.Order
	leadSell *deals.Order

	closedEntries []deals.LedgerEntry
	deleted       []int64
	nextID        int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		deals:    map[int64]*deals.Deal{},
		managers: map[int64]*deals.Manager{},
		nextID:   100,
	}
}

func (f *fakeStore) addDeal(d *deals.Deal) *deals.Deal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == 0 {
		f.nextID++
		d.ID = f.nextID
	}
	f.deals[d.ID] = d
	return d
}

func (f *fakeStore) addManager(m *deals.Manager) *deals.Manager {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.managers[m.ID] = m
	return m
}

func (f *fakeStore) CreateDeal(_ context.Context, d *deals.Deal) error {
	f.addDeal(d)
	return nil
}

func (f *fakeStore) GetDeal(_ context.Context, id int64) (*deals.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deals[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (f *fakeStore) UpdateDeal(_ context.Context, d *deals.Deal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.deals[d.ID]; !ok {
		return interfaces.ErrNotFound
	}
	copied := *d
	f.deals[d.ID] = &copied
	return nil
}

func (f *fakeStore) ListDeals(context.Context, interfaces.DealFilter) ([]deals.Deal, error) {
	return nil, nil
}

func (f *fakeStore) ListUnassignedWarm(_ context.Context, limit int) ([]deals.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []deals.Deal
	for _, d := range f.deals {
		if d.Status == deals.StatusWarm && d.ManagerID == nil {
			out = append(out, *d)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListColdWithoutNegotiation(context.Context, int) ([]deals.Deal, error) {
	return nil, nil
}

func (f *fakeStore) ClaimDeal(_ context.Context, dealID, managerID int64, rate decimal.Decimal, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deals[dealID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if d.ManagerID != nil {
		return interfaces.ErrAlreadyAssigned
	}
	if d.Status != deals.StatusWarm {
		return interfaces.ErrNotWarm
	}
	d.ManagerID = &managerID
	d.AssignedAt = &at
	d.CommissionRate = &rate
	d.Status = deals.StatusHandedToManager
	return nil
}

func (f *fakeStore) CountActiveDeals(_ context.Context, managerID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, d := range f.deals {
		if d.ManagerID != nil && *d.ManagerID == managerID && d.Status.IsOpen() {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CloseDeal(_ context.Context, d *deals.Deal, entry *deals.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *d
	f.deals[d.ID] = &copied
	if entry != nil {
		f.closedEntries = append(f.closedEntries, *entry)
	}
	return nil
}

func (f *fakeStore) CreateLead(_ context.Context, buy, sell *deals.Order, d *deals.Deal) error {
	f.mu.Lock()
	f.leadBuy = buy
	f.leadSell = sell
	f.mu.Unlock()
	f.addDeal(d)
	return nil
}

func (f *fakeStore) DeleteDealCascade(_ context.Context, dealID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.deals[dealID]; !ok {
		return interfaces.ErrNotFound
	}
	delete(f.deals, dealID)
	f.deleted = append(f.deleted, dealID)
	return nil
}

func (f *fakeStore) GetManager(_ context.Context, id int64) (*deals.Manager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.managers[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeStore) ListActiveManagers(_ context.Context) ([]deals.Manager, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []deals.Manager
	for _, m := range f.managers {
		if m.IsActive {
			out = append(out, *m)
		}
	}
	return out, nil
}

type fakeSettings struct {
	mu     sync.Mutex
	values map[string]any
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: map[string]any{}}
}

func (f *fakeSettings) GetString(_ context.Context, key, fallback string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key].(string); ok {
		return v
	}
	return fallback
}

func (f *fakeSettings) GetInt(_ context.Context, key string, fallback int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key].(int); ok {
		return v
	}
	return fallback
}

func (f *fakeSettings) Put(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []interfaces.AuditEvent
}

func (r *recordingAudit) Record(_ context.Context, event interfaces.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Action)
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestService(store *fakeStore, settings *fakeSettings, audit *recordingAudit) *Service {
	return NewService(store, store, settings, audit, quietLogger())
}

func warmDeal(store *fakeStore) *deals.Deal {
	return store.addDeal(&deals.Deal{
		Product:    "MacBook Pro",
		BuyPrice:   decimal.NewFromInt(120000),
		SellPrice:  decimal.NewFromInt(70000),
		Margin:     decimal.NewFromInt(50000),
		Status:     deals.StatusWarm,
		LeadSource: deals.LeadSourceSystem,
	})
}

func activeManager(store *fakeStore, id int64) *deals.Manager {
	return store.addManager(&deals.Manager{ID: id, DisplayName: "m", IsActive: true})
}

func TestTakeClaimsAndFreezesRate(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	activeManager(store, 1)
	audit := &recordingAudit{}
	svc := newTestService(store, newFakeSettings(), audit)

	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))

	claimed, err := store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed.ManagerID)
	assert.Equal(t, int64(1), *claimed.ManagerID)
	require.NotNil(t, claimed.CommissionRate)
	assert.True(t, claimed.CommissionRate.Equal(commission.SystemLeadRate))
	assert.Contains(t, audit.actions(), "deal.take")
}

func TestTakeLosesRaceCleanly(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	activeManager(store, 1)
	activeManager(store, 2)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})

	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))
	err := svc.Take(context.Background(), deal.ID, 2)
	assert.True(t, errors.Is(err, interfaces.ErrAlreadyAssigned))

	claimed, getErr := store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, getErr)
	assert.Equal(t, int64(1), *claimed.ManagerID)
}

func TestTakeRejectsAtCapacity(t *testing.T) {
	store := newFakeStore()
	activeManager(store, 1)
	settings := newFakeSettings()
	require.NoError(t, settings.Put(context.Background(), interfaces.SettingMaxDealsPerManager, 1))
	svc := newTestService(store, settings, &recordingAudit{})

	first := warmDeal(store)
	second := warmDeal(store)
	require.NoError(t, svc.Take(context.Background(), first.ID, 1))

	err := svc.Take(context.Background(), second.ID, 1)
	assert.True(t, errors.Is(err, ErrAtCapacity))
}

func TestTakeRejectsNotWarm(t *testing.T) {
	store := newFakeStore()
	activeManager(store, 1)
	deal := store.addDeal(&deals.Deal{Status: deals.StatusCold, LeadSource: deals.LeadSourceSystem})
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})

	err := svc.Take(context.Background(), deal.ID, 1)
	assert.True(t, errors.Is(err, interfaces.ErrNotWarm))
}

func TestTakeRejectsInactiveManager(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	store.addManager(&deals.Manager{ID: 9, IsActive: false})
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})

	err := svc.Take(context.Background(), deal.ID, 9)
	assert.True(t, errors.Is(err, ErrManagerInactive))
}

func TestAssignPassPicksLeastBusyManager(t *testing.T) {
	store := newFakeStore()
	activeManager(store, 1)
	activeManager(store, 2)

	// Manager 1 already carries one open deal.
	one := int64(1)
	store.addDeal(&deals.Deal{Status: deals.StatusInProgress, ManagerID: &one})

	deal := warmDeal(store)

	settings := newFakeSettings()
	require.NoError(t, settings.Put(context.Background(), interfaces.SettingAssignmentMode, interfaces.AssignmentModeAuto))
	svc := newTestService(store, settings, &recordingAudit{})

	assigned, err := svc.AssignPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, assigned)

	claimed, err := store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed.ManagerID)
	assert.Equal(t, int64(2), *claimed.ManagerID)
}

func TestAssignPassNoopInFreePoolMode(t *testing.T) {
	store := newFakeStore()
	activeManager(store, 1)
	warmDeal(store)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})

	assigned, err := svc.AssignPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, assigned)
}

func TestAssignPassStopsAtCapacity(t *testing.T) {
	store := newFakeStore()
	activeManager(store, 1)
	warmDeal(store)
	warmDeal(store)

	settings := newFakeSettings()
	require.NoError(t, settings.Put(context.Background(), interfaces.SettingAssignmentMode, interfaces.AssignmentModeAuto))
	require.NoError(t, settings.Put(context.Background(), interfaces.SettingMaxDealsPerManager, 1))
	svc := newTestService(store, settings, &recordingAudit{})

	assigned, err := svc.AssignPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, assigned)
}

func TestRateFrozenAtAssignmentSurvivesManagerRateChange(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	manager := activeManager(store, 1)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})

	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))

	// Manager negotiates a new personal rate after assignment.
	newRate := decimal.NewFromFloat(0.50)
	manager.CommissionRate = &newRate

	require.NoError(t, svc.Close(context.Background(), deal.ID, 1, true, ""))

	require.Len(t, store.closedEntries, 1)
	entry := store.closedEntries[0]
	require.NotNil(t, entry.RateApplied)
	assert.True(t, entry.RateApplied.Equal(commission.SystemLeadRate))
	assert.True(t, entry.Commission.Equal(decimal.NewFromInt(10000)))
}

func TestCloseWonWritesLedgerEntry(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	activeManager(store, 1)
	audit := &recordingAudit{}
	svc := newTestService(store, newFakeSettings(), audit)
	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))

	require.NoError(t, svc.Close(context.Background(), deal.ID, 1, true, "smooth close"))

	closed, err := store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, deals.StatusWon, closed.Status)
	assert.Equal(t, "smooth close", closed.Notes)

	require.Len(t, store.closedEntries, 1)
	entry := store.closedEntries[0]
	assert.Equal(t, deal.ID, entry.DealID)
	assert.True(t, entry.Profit.Equal(deal.Margin))
	assert.Equal(t, int64(1), entry.ClosedByUserID)
	assert.Contains(t, audit.actions(), "deal.close")
}

func TestCloseLostWritesNoLedgerEntry(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	activeManager(store, 1)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})
	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))

	require.NoError(t, svc.Close(context.Background(), deal.ID, 1, false, "buyer vanished"))

	closed, err := store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, deals.StatusLost, closed.Status)
	assert.Empty(t, store.closedEntries)
}

func TestCloseRejectsDoubleClose(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	activeManager(store, 1)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})
	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))
	require.NoError(t, svc.Close(context.Background(), deal.ID, 1, false, ""))

	err := svc.Close(context.Background(), deal.ID, 1, true, "")
	assert.True(t, errors.Is(err, ErrDealClosed))
	assert.Empty(t, store.closedEntries)
}

func TestCloseRejectsForeignDeal(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	activeManager(store, 1)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})
	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))

	err := svc.Close(context.Background(), deal.ID, 2, true, "")
	assert.True(t, errors.Is(err, ErrNotOwner))
}

func TestDeleteCascades(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	audit := &recordingAudit{}
	svc := newTestService(store, newFakeSettings(), audit)

	require.NoError(t, svc.Delete(context.Background(), deal.ID, 1))
	assert.Equal(t, []int64{deal.ID}, store.deleted)

	_, err := store.GetDeal(context.Background(), deal.ID)
	assert.True(t, errors.Is(err, interfaces.ErrNotFound))
	assert.Contains(t, audit.actions(), "deal.delete")
}

func TestCreateManagerLeadUsesManagerTier(t *testing.T) {
	store := newFakeStore()
	activeManager(store, 1)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})

	deal, err := svc.CreateManagerLead(context.Background(), 1, LeadInput{
		Product:        "PS5",
		BuyPrice:       decimal.NewFromInt(45000),
		SellPrice:      decimal.NewFromInt(30000),
		SellerChatID:   700,
		SellerSenderID: 71,
	})
	require.NoError(t, err)

	assert.Equal(t, deals.StatusHandedToManager, deal.Status)
	assert.Equal(t, deals.LeadSourceManager, deal.LeadSource)
	require.NotNil(t, deal.ManagerID)
	assert.Equal(t, int64(1), *deal.ManagerID)
	require.NotNil(t, deal.CommissionRate)
	assert.True(t, deal.CommissionRate.Equal(commission.ManagerLeadRate))
	assert.True(t, deal.Margin.Equal(decimal.NewFromInt(15000)))

	require.NotNil(t, store.leadSell)
	assert.Equal(t, deals.OrderTypeSell, store.leadSell.Type)
	assert.Equal(t, int64(700), store.leadSell.ChatID)
	require.NotNil(t, store.leadBuy)
	assert.Equal(t, deals.OrderTypeBuy, store.leadBuy.Type)
}

func TestSkipMarksOwnDealLostWithReason(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	activeManager(store, 1)
	audit := &recordingAudit{}
	svc := newTestService(store, newFakeSettings(), audit)
	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))

	require.NoError(t, svc.Skip(context.Background(), deal.ID, 1, "low_margin"))

	skipped, err := store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, deals.StatusLost, skipped.Status)
	assert.Contains(t, skipped.AIResolution, "low_margin")
	assert.Empty(t, store.closedEntries)
	assert.Contains(t, audit.actions(), "deal.skip")
}

func TestSkipAllowsUnassignedDeal(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})

	require.NoError(t, svc.Skip(context.Background(), deal.ID, 1, "no_contact"))

	skipped, err := store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Equal(t, deals.StatusLost, skipped.Status)
}

func TestSkipRejectsUnknownReason(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})

	err := svc.Skip(context.Background(), deal.ID, 1, "changed_my_mind")
	assert.True(t, errors.Is(err, ErrInvalidSkipReason))

	untouched, getErr := store.GetDeal(context.Background(), deal.ID)
	require.NoError(t, getErr)
	assert.Equal(t, deals.StatusWarm, untouched.Status)
}

func TestSkipRejectsClosedDeal(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	activeManager(store, 1)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})
	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))
	require.NoError(t, svc.Close(context.Background(), deal.ID, 1, false, ""))

	err := svc.Skip(context.Background(), deal.ID, 1, "other")
	assert.True(t, errors.Is(err, ErrDealClosed))
}

func TestSkipRejectsForeignDeal(t *testing.T) {
	store := newFakeStore()
	deal := warmDeal(store)
	activeManager(store, 1)
	svc := newTestService(store, newFakeSettings(), &recordingAudit{})
	require.NoError(t, svc.Take(context.Background(), deal.ID, 1))

	err := svc.Skip(context.Background(), deal.ID, 2, "other")
	assert.True(t, errors.Is(err, ErrNotOwner))
}
