package service

import (
	"context"
	"strings"
	"time"

	"vaxtrack/internal/domain"
	"vaxtrack/internal/repository"
	"vaxtrack/internal/store"
	"vaxtrack/pkg/metrics"

	"go.uber.org/zap"
)

// ChildService 儿童登记与剂次保存服务接口
// 所有操作显式绑定当前会话机构的 facilityID；跨机构访问一律拒绝。
// 依赖"今天"的操作显式接收 now，便于在日期边界上测试。
type ChildService interface {
	RegisterChild(ctx context.Context, facilityID int64, req RegisterChildRequest, now time.Time) (*domain.Child, error)
	UpdateChild(ctx context.Context, facilityID, childID int64, req UpdateChildRequest) (*domain.Child, error)
	DeleteChild(ctx context.Context, facilityID, childID int64) error
	GetChild(ctx context.Context, facilityID, childID int64) (*domain.Child, error)
	ListChildren(ctx context.Context, facilityID int64) ([]domain.Child, error)

	// SaveDoses 免疫更新的保存路径：整组快照替换 + 违约标记回写 + 编辑缓冲清除
	SaveDoses(ctx context.Context, facilityID, childID int64, rows []DoseInput, booking *BookingRequest, now time.Time) ([]domain.VaccinationDose, error)

	// ChildDoses 读取剂次分类视图（未保存编辑作为覆盖层返回）
	ChildDoses(ctx context.Context, facilityID, childID int64, now time.Time) (*ChildDoseView, error)

	// BookableVaccines 可预约疫苗集合：程序表 - 已接种 - 缓冲中正在录入的
	BookableVaccines(ctx context.Context, facilityID, childID int64) ([]string, error)

	// Summary 汇总视图：三个互斥桶与计数
	Summary(ctx context.Context, facilityID int64, now time.Time) (*SummaryView, error)
}

// RegisterChildRequest 登记请求
type RegisterChildRequest struct {
	Name    string
	DOB     time.Time
	Sex     string
	Address string
	Contact string
}

// UpdateChildRequest 可编辑字段的部分更新
type UpdateChildRequest struct {
	Name    *string
	DOB     *time.Time
	Sex     *string
	Address *string
	Contact *string
}

// DoseInput 剂次快照的一行（已接种与未接种行都会提交）
type DoseInput struct {
	Vaccine     string
	DateGiven   *time.Time
	BatchNumber string
	PlaceGiven  string
	Remarks     string
	NextVisit   *time.Time
}

// BookingRequest 可选的下次随访预约载荷
type BookingRequest struct {
	Date     time.Time
	Vaccines []string
}

// ChildDoseView 剂次展示视图：分类结果 + 未保存编辑覆盖层
type ChildDoseView struct {
	Child    domain.Child      `json:"child"`
	Statuses []DoseStatus      `json:"statuses"`
	Pending  map[string]string `json:"pending"` // 疫苗标签 -> 未提交日期
}

// SummaryView 汇总视图
type SummaryView struct {
	TotalChildren int     `json:"total_children"`
	Defaulters    int     `json:"defaulters"`
	DueSoon       int     `json:"due_soon"`
	Upcoming      int     `json:"upcoming"`
	Buckets       Buckets `json:"buckets"`
}

// childService 实现
type childService struct {
	children repository.ChildrenRepository
	engine   *StatusEngine
	edits    store.EditBuffer
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewChildService 创建 ChildService 实例
func NewChildService(children repository.ChildrenRepository, engine *StatusEngine, edits store.EditBuffer, m *metrics.Metrics, logger *zap.Logger) ChildService {
	return &childService{
		children: children,
		engine:   engine,
		edits:    edits,
		metrics:  m,
		logger:   logger,
	}
}

// RegisterChild 登记新儿童
func (s *childService) RegisterChild(ctx context.Context, facilityID int64, req RegisterChildRequest, now time.Time) (*domain.Child, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}
	if req.DOB.IsZero() {
		return nil, domain.NewValidationError("dob", "date of birth is required")
	}
	if truncateToDay(req.DOB).After(truncateToDay(now)) {
		return nil, domain.NewValidationError("dob", "date of birth cannot be in the future")
	}

	// 登记号生成与重名检查都必须基于插入时刻的最新集合
	existing, err := s.children.ListChildren(ctx, facilityID)
	if err != nil {
		s.countError("register_child")
		return nil, domain.NewStorageError("register child", err)
	}
	for _, c := range existing {
		if strings.EqualFold(strings.TrimSpace(c.Name), name) {
			return nil, domain.NewValidationError("name", "a child with this name is already registered")
		}
	}

	child := &domain.Child{
		FacilityID:  facilityID,
		RegNo:       GenerateRegNo(existing, now),
		Name:        name,
		DOB:         req.DOB,
		Sex:         req.Sex,
		Address:     req.Address,
		Contact:     req.Contact,
		IsDefaulter: false,
		CreatedAt:   now,
	}
	created, err := s.children.CreateChild(ctx, child)
	if err != nil {
		s.countError("register_child")
		return nil, domain.NewStorageError("register child", err)
	}

	if s.metrics != nil {
		s.metrics.ChildrenRegistered.Inc()
	}
	s.logger.Info("Child registered",
		zap.Int64("facility_id", facilityID),
		zap.Int64("child_id", created.ChildID),
		zap.String("reg_no", created.RegNo),
	)
	return created, nil
}

// UpdateChild 部分更新可编辑字段
func (s *childService) UpdateChild(ctx context.Context, facilityID, childID int64, req UpdateChildRequest) (*domain.Child, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, domain.NewValidationError("name", "name cannot be empty")
	}
	updated, err := s.children.UpdateChild(ctx, facilityID, childID, repository.ChildUpdate{
		Name:    req.Name,
		DOB:     req.DOB,
		Sex:     req.Sex,
		Address: req.Address,
		Contact: req.Contact,
	})
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewValidationError("child", "child not found in this facility")
		}
		s.countError("update_child")
		return nil, domain.NewStorageError("update child", err)
	}
	return updated, nil
}

// DeleteChild 原子删除儿童及其全部剂次
func (s *childService) DeleteChild(ctx context.Context, facilityID, childID int64) error {
	if err := s.children.DeleteChild(ctx, facilityID, childID); err != nil {
		if err == repository.ErrNotFound {
			return domain.NewValidationError("child", "child not found in this facility")
		}
		s.countError("delete_child")
		return domain.NewStorageError("delete child", err)
	}
	s.logger.Info("Child deleted",
		zap.Int64("facility_id", facilityID),
		zap.Int64("child_id", childID),
	)
	return nil
}

func (s *childService) GetChild(ctx context.Context, facilityID, childID int64) (*domain.Child, error) {
	c, err := s.children.GetChild(ctx, facilityID, childID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewValidationError("child", "child not found in this facility")
		}
		return nil, domain.NewStorageError("get child", err)
	}
	return c, nil
}

func (s *childService) ListChildren(ctx context.Context, facilityID int64) ([]domain.Child, error) {
	children, err := s.children.ListChildren(ctx, facilityID)
	if err != nil {
		return nil, domain.NewStorageError("list children", err)
	}
	return children, nil
}

// SaveDoses 保存一个儿童的完整剂次快照
func (s *childService) SaveDoses(ctx context.Context, facilityID, childID int64, rows []DoseInput, booking *BookingRequest, now time.Time) ([]domain.VaccinationDose, error) {
	start := time.Now()

	child, err := s.children.GetChild(ctx, facilityID, childID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewValidationError("child", "child not found in this facility")
		}
		return nil, domain.NewStorageError("save doses", err)
	}

	doses := make([]domain.VaccinationDose, 0, len(rows))
	seen := map[string]int{} // 疫苗标签 -> doses 下标
	for _, row := range rows {
		if !domain.IsScheduledVaccine(row.Vaccine) {
			return nil, domain.NewValidationError("vaccine", "unknown vaccine: "+row.Vaccine)
		}
		if row.DateGiven != nil {
			if strings.TrimSpace(row.BatchNumber) == "" {
				return nil, domain.NewValidationError("batch_number", "batch number is required when a dose date is recorded")
			}
			if strings.TrimSpace(row.PlaceGiven) == "" {
				return nil, domain.NewValidationError("place_given", "place given is required when a dose date is recorded")
			}
			if strings.TrimSpace(row.Remarks) == "" {
				return nil, domain.NewValidationError("remarks", "remarks are required when a dose date is recorded")
			}
		}
		d := domain.VaccinationDose{
			ChildID:     childID,
			FacilityID:  facilityID,
			Vaccine:     row.Vaccine,
			DateGiven:   row.DateGiven,
			BatchNumber: row.BatchNumber,
			PlaceGiven:  row.PlaceGiven,
			Remarks:     row.Remarks,
			NextVisit:   row.NextVisit,
		}.Normalize()
		if !d.Meaningful() {
			// 两个日期皆空的行不落库
			continue
		}
		seen[d.Vaccine] = len(doses)
		doses = append(doses, d)
	}

	if booking != nil {
		if booking.Date.IsZero() {
			return nil, domain.NewValidationError("booking", "next visit date is required")
		}
		for _, vaccine := range booking.Vaccines {
			if !domain.IsScheduledVaccine(vaccine) {
				return nil, domain.NewValidationError("booking", "unknown vaccine: "+vaccine)
			}
			if i, ok := seen[vaccine]; ok {
				if doses[i].DateGiven != nil {
					return nil, domain.NewValidationError("booking", "cannot book a next visit for a dose already recorded as given: "+vaccine)
				}
				visit := booking.Date
				doses[i].NextVisit = &visit
				doses[i] = doses[i].Normalize()
				continue
			}
			visit := booking.Date
			d := domain.VaccinationDose{
				ChildID:    childID,
				FacilityID: facilityID,
				Vaccine:    vaccine,
				NextVisit:  &visit,
			}.Normalize()
			seen[vaccine] = len(doses)
			doses = append(doses, d)
		}
	}

	saved, err := s.children.ReplaceChildDoses(ctx, facilityID, childID, doses)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewValidationError("child", "child not found in this facility")
		}
		s.countError("save_doses")
		return nil, domain.NewStorageError("save doses", err)
	}

	// 违约标记是派生缓存：每次剂次替换后立即重算并回写，绝不用旧值
	isDefaulter := s.engine.IsDefaulter(saved, now)
	if err := s.children.SetDefaulter(ctx, facilityID, childID, isDefaulter); err != nil {
		s.countError("save_doses")
		return nil, domain.NewStorageError("update defaulter flag", err)
	}

	// 保存成功后整组清除该儿童的未保存编辑
	s.edits.Clear(child.EditKey())

	if s.metrics != nil {
		s.metrics.DoseSetsSaved.Inc()
		s.metrics.SaveDuration.Observe(time.Since(start).Seconds())
	}
	s.logger.Info("Dose set saved",
		zap.Int64("facility_id", facilityID),
		zap.Int64("child_id", childID),
		zap.Int("doses", len(saved)),
		zap.Bool("is_defaulter", isDefaulter),
	)
	return saved, nil
}

// ChildDoses 剂次分类视图，未保存编辑作为覆盖层一并返回
func (s *childService) ChildDoses(ctx context.Context, facilityID, childID int64, now time.Time) (*ChildDoseView, error) {
	child, err := s.children.GetChild(ctx, facilityID, childID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewValidationError("child", "child not found in this facility")
		}
		return nil, domain.NewStorageError("load doses", err)
	}
	return &ChildDoseView{
		Child:    *child,
		Statuses: s.engine.ClassifyDoses(child.Doses, now),
		Pending:  s.edits.ForChild(child.EditKey()),
	}, nil
}

// BookableVaccines 程序表顺序下的可预约集合
// 排除已接种的疫苗，以及编辑缓冲里正在录入接种日期的疫苗
// （本次编辑会话已按"已接种"处理的剂次不能再约下次随访）
func (s *childService) BookableVaccines(ctx context.Context, facilityID, childID int64) ([]string, error) {
	child, err := s.children.GetChild(ctx, facilityID, childID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, domain.NewValidationError("child", "child not found in this facility")
		}
		return nil, domain.NewStorageError("list bookable vaccines", err)
	}

	given := map[string]bool{}
	for _, d := range child.Doses {
		if d.DateGiven != nil {
			given[d.Vaccine] = true
		}
	}
	pending := s.edits.ForChild(child.EditKey())

	bookable := []string{}
	for _, vaccine := range domain.Schedule {
		if given[vaccine] {
			continue
		}
		if v, ok := pending[vaccine]; ok && strings.TrimSpace(v) != "" {
			continue
		}
		bookable = append(bookable, vaccine)
	}
	return bookable, nil
}

// Summary 汇总视图
func (s *childService) Summary(ctx context.Context, facilityID int64, now time.Time) (*SummaryView, error) {
	children, err := s.children.ListChildren(ctx, facilityID)
	if err != nil {
		return nil, domain.NewStorageError("summary", err)
	}
	buckets := s.engine.Aggregate(children, now)
	return &SummaryView{
		TotalChildren: len(children),
		Defaulters:    len(buckets.Defaulters),
		DueSoon:       len(buckets.DueSoon),
		Upcoming:      len(buckets.Upcoming),
		Buckets:       buckets,
	}, nil
}

func (s *childService) countError(op string) {
	if s.metrics != nil {
		s.metrics.ErrorsCount.WithLabelValues(op).Inc()
	}
}
