package repository

import (
	"context"
	"database/sql"
	"fmt"

	"vaxtrack/internal/domain"
)

// PostgresChildrenRepository 儿童 + 剂次 Repository 实现（机构服务器部署）
// 与 sqlite 版本同语义：跨两表的修改都在单事务内完成
type PostgresChildrenRepository struct {
	db *sql.DB
}

// NewPostgresChildrenRepository 创建儿童 Repository
func NewPostgresChildrenRepository(db *sql.DB) *PostgresChildrenRepository {
	return &PostgresChildrenRepository{db: db}
}

// 确保实现了接口
var _ ChildrenRepository = (*PostgresChildrenRepository)(nil)

const pgChildColumns = `child_id, facility_id, reg_no, name, dob, sex, address, contact, is_defaulter, created_at`
const pgDoseColumns = `dose_id, child_id, facility_id, vaccine, date_given, batch_number, place_given, remarks, next_visit, status`

// CreateChild 新建儿童记录（空剂次表）
func (r *PostgresChildrenRepository) CreateChild(ctx context.Context, c *domain.Child) (*domain.Child, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO children (facility_id, reg_no, name, dob, sex, address, contact, is_defaulter, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING child_id`,
		c.FacilityID, c.RegNo, c.Name, c.DOB, c.Sex, c.Address, c.Contact, c.IsDefaulter, c.CreatedAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create child: %w", err)
	}
	created := *c
	created.ChildID = id
	created.Doses = []domain.VaccinationDose{}
	return &created, nil
}

// UpdateChild 部分更新可编辑字段
func (r *PostgresChildrenRepository) UpdateChild(ctx context.Context, facilityID, childID int64, fields ChildUpdate) (*domain.Child, error) {
	set := ""
	var args []any
	appendSet := func(col string, v any) {
		if set != "" {
			set += ", "
		}
		args = append(args, v)
		set += fmt.Sprintf("%s = $%d", col, len(args))
	}
	if fields.Name != nil {
		appendSet("name", *fields.Name)
	}
	if fields.DOB != nil {
		appendSet("dob", *fields.DOB)
	}
	if fields.Sex != nil {
		appendSet("sex", *fields.Sex)
	}
	if fields.Address != nil {
		appendSet("address", *fields.Address)
	}
	if fields.Contact != nil {
		appendSet("contact", *fields.Contact)
	}
	if set == "" {
		return r.GetChild(ctx, facilityID, childID)
	}
	args = append(args, childID, facilityID)
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE children SET %s WHERE child_id = $%d AND facility_id = $%d`, set, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update child: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.GetChild(ctx, facilityID, childID)
}

// DeleteChild 原子删除：剂次与儿童记录在同一事务内删除
func (r *PostgresChildrenRepository) DeleteChild(ctx context.Context, facilityID, childID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vaccinations WHERE child_id = $1 AND facility_id = $2`,
		childID, facilityID,
	); err != nil {
		return fmt.Errorf("failed to delete child doses: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM children WHERE child_id = $1 AND facility_id = $2`,
		childID, facilityID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete child: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// GetChild 查询单个儿童（挂载剂次）
func (r *PostgresChildrenRepository) GetChild(ctx context.Context, facilityID, childID int64) (*domain.Child, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+pgChildColumns+` FROM children WHERE child_id = $1 AND facility_id = $2`,
		childID, facilityID,
	)
	c, err := scanChild(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	doses, err := r.ListDosesForChild(ctx, facilityID, childID)
	if err != nil {
		return nil, err
	}
	c.Doses = doses
	return c, nil
}

// ListChildren 机构内全部儿童，剂次一次性取回后按 child_id 分组挂载
func (r *PostgresChildrenRepository) ListChildren(ctx context.Context, facilityID int64) ([]domain.Child, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pgChildColumns+` FROM children WHERE facility_id = $1 ORDER BY child_id`,
		facilityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var children []domain.Child
	index := map[int64]int{}
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		c.Doses = []domain.VaccinationDose{}
		index[c.ChildID] = len(children)
		children = append(children, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	doseRows, err := r.db.QueryContext(ctx,
		`SELECT `+pgDoseColumns+` FROM vaccinations WHERE facility_id = $1 ORDER BY dose_id`,
		facilityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list doses: %w", err)
	}
	defer doseRows.Close()

	for doseRows.Next() {
		d, err := scanDose(doseRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dose: %w", err)
		}
		if i, ok := index[d.ChildID]; ok {
			children[i].Doses = append(children[i].Doses, *d)
		}
	}
	if err := doseRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list doses: %w", err)
	}
	for i := range children {
		sortDosesBySchedule(children[i].Doses)
	}
	return children, nil
}

// ListDosesForChild 单个儿童的剂次（程序表顺序）
func (r *PostgresChildrenRepository) ListDosesForChild(ctx context.Context, facilityID, childID int64) ([]domain.VaccinationDose, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pgDoseColumns+` FROM vaccinations WHERE child_id = $1 AND facility_id = $2 ORDER BY dose_id`,
		childID, facilityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list doses for child: %w", err)
	}
	defer rows.Close()

	doses := []domain.VaccinationDose{}
	for rows.Next() {
		d, err := scanDose(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dose: %w", err)
		}
		doses = append(doses, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list doses for child: %w", err)
	}
	sortDosesBySchedule(doses)
	return doses, nil
}

// ReplaceChildDoses 先删后插，单事务
func (r *PostgresChildrenRepository) ReplaceChildDoses(ctx context.Context, facilityID, childID int64, doses []domain.VaccinationDose) ([]domain.VaccinationDose, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin dose replace: %w", err)
	}
	defer tx.Rollback()

	var exists int64
	if err := tx.QueryRowContext(ctx,
		`SELECT child_id FROM children WHERE child_id = $1 AND facility_id = $2`,
		childID, facilityID,
	).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to check child: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vaccinations WHERE child_id = $1 AND facility_id = $2`,
		childID, facilityID,
	); err != nil {
		return nil, fmt.Errorf("failed to clear child doses: %w", err)
	}

	inserted := make([]domain.VaccinationDose, 0, len(doses))
	for _, d := range doses {
		var id int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO vaccinations (child_id, facility_id, vaccine, date_given, batch_number, place_given, remarks, next_visit, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING dose_id`,
			childID, facilityID, d.Vaccine, d.DateGiven, d.BatchNumber, d.PlaceGiven, d.Remarks, d.NextVisit, d.Status,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert dose: %w", err)
		}
		d.DoseID = id
		d.ChildID = childID
		d.FacilityID = facilityID
		inserted = append(inserted, d)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dose replace: %w", err)
	}
	sortDosesBySchedule(inserted)
	return inserted, nil
}

// SetDefaulter 回写缓存的违约标记
func (r *PostgresChildrenRepository) SetDefaulter(ctx context.Context, facilityID, childID int64, isDefaulter bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE children SET is_defaulter = $1 WHERE child_id = $2 AND facility_id = $3`,
		isDefaulter, childID, facilityID,
	)
	if err != nil {
		return fmt.Errorf("failed to update defaulter flag: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
