package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"vaxtrack/internal/domain"
)

// MemoryStore 全部集合的内存实现
// 开发环境无数据库时的兜底，也是 service 层单测的基底。
// 儿童与剂次耦合在同一把锁下，删-插序列天然原子。
type MemoryStore struct {
	mu sync.RWMutex

	facilities map[int64]domain.Facility
	children   map[int64]domain.Child
	doses      map[int64]domain.VaccinationDose
	session    *domain.Session
	settings   map[string]string
	backups    []string

	nextFacilityID int64
	nextChildID    int64
	nextDoseID     int64
	nextSessionID  int64
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		facilities: map[int64]domain.Facility{},
		children:   map[int64]domain.Child{},
		doses:      map[int64]domain.VaccinationDose{},
		settings:   map[string]string{},
	}
}

// 确保实现了全部接口
var (
	_ FacilitiesRepository = (*MemoryStore)(nil)
	_ ChildrenRepository   = (*MemoryStore)(nil)
	_ SessionsRepository   = (*MemoryStore)(nil)
	_ BackupsRepository    = (*MemoryStore)(nil)
	_ SettingsRepository   = (*MemoryStore)(nil)
)

// ============================================
// FacilitiesRepository
// ============================================

func (m *MemoryStore) CreateFacility(_ context.Context, f *domain.Facility) (*domain.Facility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextFacilityID++
	created := *f
	created.FacilityID = m.nextFacilityID
	created.Code = strings.ToUpper(f.Code)
	m.facilities[created.FacilityID] = created
	return &created, nil
}

func (m *MemoryStore) GetFacilityByCode(_ context.Context, code string) (*domain.Facility, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	code = strings.ToUpper(code)
	for _, f := range m.facilities {
		if f.Code == code {
			cp := f
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetFacilityByID(_ context.Context, facilityID int64) (*domain.Facility, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.facilities[facilityID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := f
	return &cp, nil
}

func (m *MemoryStore) UpdateFacilityPassword(_ context.Context, facilityID int64, passwordHash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.facilities[facilityID]
	if !ok {
		return ErrNotFound
	}
	f.PasswordHash = passwordHash
	m.facilities[facilityID] = f
	return nil
}

func (m *MemoryStore) ListFacilities(_ context.Context) ([]domain.Facility, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]domain.Facility, 0, len(m.facilities))
	for _, f := range m.facilities {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].FacilityID < all[j].FacilityID })
	return all, nil
}

func (m *MemoryStore) RecordRecoveryAttempt(_ context.Context, code string, succeeded bool, at time.Time) error {
	// 内存实现不保留尝试明细
	return nil
}

// ============================================
// ChildrenRepository
// ============================================

func (m *MemoryStore) CreateChild(_ context.Context, c *domain.Child) (*domain.Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextChildID++
	created := *c
	created.ChildID = m.nextChildID
	created.Doses = nil
	m.children[created.ChildID] = created

	out := created
	out.Doses = []domain.VaccinationDose{}
	return &out, nil
}

func (m *MemoryStore) UpdateChild(ctx context.Context, facilityID, childID int64, fields ChildUpdate) (*domain.Child, error) {
	m.mu.Lock()
	c, ok := m.children[childID]
	if !ok || c.FacilityID != facilityID {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if fields.Name != nil {
		c.Name = *fields.Name
	}
	if fields.DOB != nil {
		c.DOB = *fields.DOB
	}
	if fields.Sex != nil {
		c.Sex = *fields.Sex
	}
	if fields.Address != nil {
		c.Address = *fields.Address
	}
	if fields.Contact != nil {
		c.Contact = *fields.Contact
	}
	m.children[childID] = c
	m.mu.Unlock()
	return m.GetChild(ctx, facilityID, childID)
}

func (m *MemoryStore) DeleteChild(_ context.Context, facilityID, childID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.children[childID]
	if !ok || c.FacilityID != facilityID {
		return ErrNotFound
	}
	for id, d := range m.doses {
		if d.ChildID == childID {
			delete(m.doses, id)
		}
	}
	delete(m.children, childID)
	return nil
}

func (m *MemoryStore) GetChild(_ context.Context, facilityID, childID int64) (*domain.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.children[childID]
	if !ok || c.FacilityID != facilityID {
		return nil, ErrNotFound
	}
	cp := c
	cp.Doses = m.dosesForChildLocked(childID)
	return &cp, nil
}

func (m *MemoryStore) ListChildren(_ context.Context, facilityID int64) ([]domain.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []domain.Child
	for _, c := range m.children {
		if c.FacilityID != facilityID {
			continue
		}
		cp := c
		cp.Doses = m.dosesForChildLocked(c.ChildID)
		all = append(all, cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ChildID < all[j].ChildID })
	return all, nil
}

func (m *MemoryStore) ListDosesForChild(_ context.Context, facilityID, childID int64) ([]domain.VaccinationDose, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.children[childID]
	if !ok || c.FacilityID != facilityID {
		return nil, ErrNotFound
	}
	return m.dosesForChildLocked(childID), nil
}

// dosesForChildLocked 调用方需持锁
func (m *MemoryStore) dosesForChildLocked(childID int64) []domain.VaccinationDose {
	doses := []domain.VaccinationDose{}
	for _, d := range m.doses {
		if d.ChildID == childID {
			doses = append(doses, d)
		}
	}
	sort.Slice(doses, func(i, j int) bool { return doses[i].DoseID < doses[j].DoseID })
	sortDosesBySchedule(doses)
	return doses
}

func (m *MemoryStore) ReplaceChildDoses(_ context.Context, facilityID, childID int64, doses []domain.VaccinationDose) ([]domain.VaccinationDose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.children[childID]
	if !ok || c.FacilityID != facilityID {
		return nil, ErrNotFound
	}
	for id, d := range m.doses {
		if d.ChildID == childID {
			delete(m.doses, id)
		}
	}
	inserted := make([]domain.VaccinationDose, 0, len(doses))
	for _, d := range doses {
		m.nextDoseID++
		d.DoseID = m.nextDoseID
		d.ChildID = childID
		d.FacilityID = facilityID
		m.doses[d.DoseID] = d
		inserted = append(inserted, d)
	}
	sortDosesBySchedule(inserted)
	return inserted, nil
}

func (m *MemoryStore) SetDefaulter(_ context.Context, facilityID, childID int64, isDefaulter bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.children[childID]
	if !ok || c.FacilityID != facilityID {
		return ErrNotFound
	}
	c.IsDefaulter = isDefaulter
	m.children[childID] = c
	return nil
}

// ============================================
// SessionsRepository
// ============================================

func (m *MemoryStore) SaveSession(_ context.Context, facilityID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSessionID++
	m.session = &domain.Session{SessionID: m.nextSessionID, FacilityID: facilityID, LoggedInAt: at}
	return nil
}

func (m *MemoryStore) LatestSession(_ context.Context) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil, ErrNotFound
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemoryStore) ClearSessions(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = nil
	return nil
}

// ============================================
// BackupsRepository
// ============================================

func (m *MemoryStore) RecordBackup(_ context.Context, backupID string, _ time.Time, _, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.backups = append(m.backups, backupID)
	return nil
}

func (m *MemoryStore) RestoreAll(_ context.Context, facilities []domain.Facility, children []domain.Child, doses []domain.VaccinationDose) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	newFacilities := map[int64]domain.Facility{}
	newChildren := map[int64]domain.Child{}
	newDoses := map[int64]domain.VaccinationDose{}
	var maxFacility, maxChild, maxDose int64
	for _, f := range facilities {
		f.Code = strings.ToUpper(f.Code)
		newFacilities[f.FacilityID] = f
		if f.FacilityID > maxFacility {
			maxFacility = f.FacilityID
		}
	}
	for _, c := range children {
		c.Doses = nil
		newChildren[c.ChildID] = c
		if c.ChildID > maxChild {
			maxChild = c.ChildID
		}
	}
	for _, d := range doses {
		newDoses[d.DoseID] = d
		if d.DoseID > maxDose {
			maxDose = d.DoseID
		}
	}

	m.facilities = newFacilities
	m.children = newChildren
	m.doses = newDoses
	m.nextFacilityID = maxFacility
	m.nextChildID = maxChild
	m.nextDoseID = maxDose
	return nil
}

// ============================================
// SettingsRepository
// ============================================

func (m *MemoryStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings[key] = value
	return nil
}
