package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/promtec/orientation-api/internal/models"
)

// SlotRepository handles persistence of slots.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

const slotColumns = `id, date, time_period, department, gender_category, notes, total_spots, max_students_per_school, is_locked, is_confirmed, created_at, updated_at`

// List returns slots filtered by the provided criteria, each with its current
// occupied count.
func (r *SlotRepository) List(ctx context.Context, filter models.SlotFilter) ([]models.SlotDetail, int, error) {
	base := `FROM slots sl`
	var conditions []string
	var args []interface{}

	if filter.Date != nil {
		conditions = append(conditions, fmt.Sprintf("sl.date = $%d", len(args)+1))
		args = append(args, *filter.Date)
	}
	if filter.TimePeriod != "" {
		conditions = append(conditions, fmt.Sprintf("sl.time_period = $%d", len(args)+1))
		args = append(args, filter.TimePeriod)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("sl.department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.GenderCategory != "" {
		conditions = append(conditions, fmt.Sprintf("sl.gender_category = $%d", len(args)+1))
		args = append(args, filter.GenderCategory)
	}
	if filter.Locked != nil {
		conditions = append(conditions, fmt.Sprintf("sl.is_locked = $%d", len(args)+1))
		args = append(args, *filter.Locked)
	}
	if filter.HideBefore != nil {
		conditions = append(conditions, fmt.Sprintf("sl.date > $%d", len(args)+1))
		args = append(args, *filter.HideBefore)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"date":        "sl.date",
		"time_period": "sl.time_period",
		"department":  "sl.department",
		"created_at":  "sl.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "sl.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 10
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT sl.id, sl.date, sl.time_period, sl.department, sl.gender_category, sl.notes,
        sl.total_spots, sl.max_students_per_school, sl.is_locked, sl.is_confirmed, sl.created_at, sl.updated_at,
        (SELECT COUNT(*) FROM student_enrollments e WHERE e.slot_id = sl.id AND NOT e.is_in_waiting_list) AS occupied_spots
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var slots []models.SlotDetail
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list slots: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count slots: %w", err)
	}
	return slots, total, nil
}

// FindByID returns a slot by its ID.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.Slot, error) {
	query := fmt.Sprintf(`SELECT %s FROM slots WHERE id = $1`, slotColumns)
	var slot models.Slot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindDetailByID returns a slot with its occupied count.
func (r *SlotRepository) FindDetailByID(ctx context.Context, id string) (*models.SlotDetail, error) {
	const query = `SELECT sl.id, sl.date, sl.time_period, sl.department, sl.gender_category, sl.notes,
        sl.total_spots, sl.max_students_per_school, sl.is_locked, sl.is_confirmed, sl.created_at, sl.updated_at,
        (SELECT COUNT(*) FROM student_enrollments e WHERE e.slot_id = sl.id AND NOT e.is_in_waiting_list) AS occupied_spots
        FROM slots sl WHERE sl.id = $1`
	var detail models.SlotDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CountByDateDepartment counts slots sharing a date and department,
// optionally excluding one slot.
func (r *SlotRepository) CountByDateDepartment(ctx context.Context, date time.Time, department models.Department, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM slots WHERE date = $1 AND department = $2`
	args := []interface{}{date, department}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count daily slots: %w", err)
	}
	return count, nil
}

// ExistsByPeriod reports whether another slot occupies the same
// date/department/time-period combination.
func (r *SlotRepository) ExistsByPeriod(ctx context.Context, date time.Time, department models.Department, period models.TimePeriod, excludeID string) (bool, error) {
	query := `SELECT 1 FROM slots WHERE date = $1 AND department = $2 AND time_period = $3`
	args := []interface{}{date, department, period}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check slot period: %w", err)
	}
	return true, nil
}

// Create persists a new slot record.
func (r *SlotRepository) Create(ctx context.Context, slot *models.Slot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	const query = `INSERT INTO slots (id, date, time_period, department, gender_category, notes, total_spots, max_students_per_school, is_locked, is_confirmed, created_at, updated_at)
        VALUES (:id, :date, :time_period, :department, :gender_category, :notes, :total_spots, :max_students_per_school, :is_locked, :is_confirmed, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// Update persists slot field changes. The caller decides the confirmed flag;
// every other mutation path goes through here with Confirmed already cleared.
func (r *SlotRepository) Update(ctx context.Context, slot *models.Slot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE slots SET date = :date, time_period = :time_period, department = :department,
        gender_category = :gender_category, notes = :notes, total_spots = :total_spots,
        max_students_per_school = :max_students_per_school, is_locked = :is_locked,
        is_confirmed = :is_confirmed, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

// SetConfirmed flips only the confirmed flag.
func (r *SlotRepository) SetConfirmed(ctx context.Context, id string, confirmed bool) error {
	const query = `UPDATE slots SET is_confirmed = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, confirmed); err != nil {
		return fmt.Errorf("set slot confirmed: %w", err)
	}
	return nil
}

// Delete removes a slot; its enrollments cascade away with it.
func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AvailableDates returns the distinct dates slots exist on, ascending.
func (r *SlotRepository) AvailableDates(ctx context.Context) ([]time.Time, error) {
	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, `SELECT DISTINCT date FROM slots ORDER BY date`); err != nil {
		return nil, fmt.Errorf("list slot dates: %w", err)
	}
	return dates, nil
}

// Occupancy recomputes a slot's occupancy snapshot from the live enrollment
// set. Point-in-time only; allocation decisions use the locked variant inside
// a transaction.
func (r *SlotRepository) Occupancy(ctx context.Context, slotID string) (models.SlotOccupancy, error) {
	var slot struct {
		TotalSpots           int `db:"total_spots"`
		MaxStudentsPerSchool int `db:"max_students_per_school"`
	}
	if err := r.db.GetContext(ctx, &slot, `SELECT total_spots, max_students_per_school FROM slots WHERE id = $1`, slotID); err != nil {
		return models.SlotOccupancy{}, err
	}
	return loadOccupancy(ctx, r.db, slotID, slot.TotalSpots, slot.MaxStudentsPerSchool)
}

func loadOccupancy(ctx context.Context, q sqlx.QueryerContext, slotID string, totalSpots, maxPerSchool int) (models.SlotOccupancy, error) {
	occ := models.SlotOccupancy{
		TotalSpots:           totalSpots,
		MaxStudentsPerSchool: maxPerSchool,
		SchoolCounts:         map[string]int{},
	}

	const query = `SELECT COALESCE(st.school_id::text, '') AS school_id, COUNT(*) AS cnt
        FROM student_enrollments e
        JOIN students st ON st.id = e.student_id
        WHERE e.slot_id = $1 AND NOT e.is_in_waiting_list
        GROUP BY st.school_id`
	rows, err := q.QueryxContext(ctx, query, slotID)
	if err != nil {
		return occ, fmt.Errorf("load slot occupancy: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schoolID string
		var cnt int
		if err := rows.Scan(&schoolID, &cnt); err != nil {
			return occ, fmt.Errorf("scan slot occupancy: %w", err)
		}
		occ.Occupied += cnt
		if schoolID != "" {
			occ.SchoolCounts[schoolID] = cnt
		}
	}
	if err := rows.Err(); err != nil {
		return occ, fmt.Errorf("iterate slot occupancy: %w", err)
	}
	return occ, nil
}
