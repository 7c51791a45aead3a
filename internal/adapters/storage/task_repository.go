package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
	"github.com/planfab/planfab/internal/core/ports"
)

// TaskRepository implements ports.TaskRepository using SQLite.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, order_number, phase, required_qty, completed_qty,
	       duration_hours, cost, status, machine_id, start_at, end_at,
	       department, work_center, created_at, updated_at`

// Create persists a new task.
func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	phaseJSON, err := json.Marshal(task.Phase)
	if err != nil {
		return fmt.Errorf("failed to marshal phase: %w", err)
	}

	idBytes, _ := task.ID.MarshalBinary()
	machineID, startAt, endAt := scheduleColumns(task)

	query := `
		INSERT INTO tasks (id, order_number, phase, required_qty, completed_qty,
		                   duration_hours, cost, status, machine_id, start_at, end_at,
		                   department, work_center, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.conn.ExecContext(ctx, query,
		idBytes,
		task.OrderNumber,
		phaseJSON,
		task.RequiredQty,
		task.CompletedQty,
		task.DurationHours,
		task.Cost,
		string(task.Status),
		machineID,
		startAt,
		endAt,
		task.Department,
		task.WorkCenter,
		task.CreatedAt.UnixMilli(),
		task.UpdatedAt.UnixMilli(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by its ID.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	idBytes, _ := id.MarshalBinary()

	query := "SELECT " + taskColumns + " FROM tasks WHERE id = ?"

	row := r.db.conn.QueryRowContext(ctx, query, idBytes)
	task, err := r.scanTask(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Kind: "task", ID: id}
	}
	return task, err
}

// Update updates an existing task.
func (r *TaskRepository) Update(ctx context.Context, task *domain.Task) error {
	phaseJSON, _ := json.Marshal(task.Phase)
	idBytes, _ := task.ID.MarshalBinary()
	machineID, startAt, endAt := scheduleColumns(task)

	query := `
		UPDATE tasks SET order_number = ?, phase = ?, required_qty = ?,
		       completed_qty = ?, duration_hours = ?, cost = ?, status = ?,
		       machine_id = ?, start_at = ?, end_at = ?, department = ?,
		       work_center = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.conn.ExecContext(ctx, query,
		task.OrderNumber,
		phaseJSON,
		task.RequiredQty,
		task.CompletedQty,
		task.DurationHours,
		task.Cost,
		string(task.Status),
		machineID,
		startAt,
		endAt,
		task.Department,
		task.WorkCenter,
		task.UpdatedAt.UnixMilli(),
		idBytes,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "task", ID: task.ID}
	}
	return nil
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	idBytes, _ := id.MarshalBinary()
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", idBytes)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "task", ID: id}
	}
	return nil
}

// List retrieves tasks with optional filtering.
func (r *TaskRepository) List(ctx context.Context, filter ports.TaskFilter) ([]*domain.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE 1=1"
	var args []interface{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.MachineID != nil {
		idBytes, _ := filter.MachineID.MarshalBinary()
		query += " AND machine_id = ?"
		args = append(args, idBytes)
	}
	if filter.Department != "" {
		query += " AND department = ?"
		args = append(args, filter.Department)
	}
	if filter.WorkCenter != "" {
		query += " AND work_center = ?"
		args = append(args, filter.WorkCenter)
	}

	query += " ORDER BY created_at ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := r.scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// ListScheduledByMachine retrieves all tasks holding a window on the machine,
// ordered by start time.
func (r *TaskRepository) ListScheduledByMachine(ctx context.Context, machineID uuid.UUID) ([]*domain.Task, error) {
	idBytes, _ := machineID.MarshalBinary()

	query := "SELECT " + taskColumns + ` FROM tasks
		WHERE machine_id = ? AND start_at IS NOT NULL
		  AND status IN ('SCHEDULED', 'IN_PROGRESS')
		ORDER BY start_at ASC`

	rows, err := r.db.conn.QueryContext(ctx, query, idBytes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := r.scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// UpdateSchedules commits schedule changes for a batch of tasks in a single
// transaction. Either every row updates or none do.
func (r *TaskRepository) UpdateSchedules(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE tasks SET required_qty = ?, completed_qty = ?, duration_hours = ?,
		       cost = ?, status = ?, machine_id = ?, start_at = ?, end_at = ?,
		       updated_at = ?
		WHERE id = ?
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, task := range tasks {
		idBytes, _ := task.ID.MarshalBinary()
		machineID, startAt, endAt := scheduleColumns(task)

		result, err := stmt.ExecContext(ctx,
			task.RequiredQty,
			task.CompletedQty,
			task.DurationHours,
			task.Cost,
			string(task.Status),
			machineID,
			startAt,
			endAt,
			task.UpdatedAt.UnixMilli(),
			idBytes,
		)
		if err != nil {
			return fmt.Errorf("failed to update task %s: %w", task.ID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &domain.NotFoundError{Kind: "task", ID: task.ID}
		}
	}

	return tx.Commit()
}

func scheduleColumns(task *domain.Task) (machineID []byte, startAt, endAt *int64) {
	if task.MachineID != nil {
		machineID, _ = task.MachineID.MarshalBinary()
	}
	if task.StartAt != nil {
		ms := task.StartAt.UnixMilli()
		startAt = &ms
	}
	if task.EndAt != nil {
		ms := task.EndAt.UnixMilli()
		endAt = &ms
	}
	return machineID, startAt, endAt
}

func (r *TaskRepository) scanTask(row *sql.Row) (*domain.Task, error) {
	var task domain.Task
	var idBytes, phaseJSON, machineBytes []byte
	var status string
	var createdAt, updatedAt int64
	var startAt, endAt sql.NullInt64
	var department, workCenter sql.NullString

	err := row.Scan(&idBytes, &task.OrderNumber, &phaseJSON, &task.RequiredQty,
		&task.CompletedQty, &task.DurationHours, &task.Cost, &status,
		&machineBytes, &startAt, &endAt, &department, &workCenter,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	fillTask(&task, idBytes, phaseJSON, machineBytes, status,
		startAt, endAt, department, workCenter, createdAt, updatedAt)
	return &task, nil
}

func (r *TaskRepository) scanTaskRows(rows *sql.Rows) (*domain.Task, error) {
	var task domain.Task
	var idBytes, phaseJSON, machineBytes []byte
	var status string
	var createdAt, updatedAt int64
	var startAt, endAt sql.NullInt64
	var department, workCenter sql.NullString

	err := rows.Scan(&idBytes, &task.OrderNumber, &phaseJSON, &task.RequiredQty,
		&task.CompletedQty, &task.DurationHours, &task.Cost, &status,
		&machineBytes, &startAt, &endAt, &department, &workCenter,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	fillTask(&task, idBytes, phaseJSON, machineBytes, status,
		startAt, endAt, department, workCenter, createdAt, updatedAt)
	return &task, nil
}

func fillTask(task *domain.Task, idBytes, phaseJSON, machineBytes []byte,
	status string, startAt, endAt sql.NullInt64,
	department, workCenter sql.NullString, createdAt, updatedAt int64) {

	task.ID = uuidFromBytes(idBytes)
	task.Status = domain.TaskStatus(status)
	_ = json.Unmarshal(phaseJSON, &task.Phase)
	task.CreatedAt = time.UnixMilli(createdAt).UTC()
	task.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	if len(machineBytes) > 0 {
		id := uuidFromBytes(machineBytes)
		task.MachineID = &id
	}
	if startAt.Valid {
		t := time.UnixMilli(startAt.Int64).UTC()
		task.StartAt = &t
	}
	if endAt.Valid {
		t := time.UnixMilli(endAt.Int64).UTC()
		task.EndAt = &t
	}
	if department.Valid {
		task.Department = department.String
	}
	if workCenter.Valid {
		task.WorkCenter = workCenter.String
	}
}

func uuidFromBytes(b []byte) uuid.UUID {
	var id uuid.UUID
	copy(id[:], b)
	return id
}
