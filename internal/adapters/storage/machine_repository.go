package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
)

// MachineRepository implements ports.MachineRepository using SQLite.
type MachineRepository struct {
	db *DB
}

// NewMachineRepository creates a new machine repository.
func NewMachineRepository(db *DB) *MachineRepository {
	return &MachineRepository{db: db}
}

// Create persists a new machine and its unavailable hours.
func (r *MachineRepository) Create(ctx context.Context, machine *domain.Machine) error {
	shiftsJSON, err := json.Marshal(machine.Shifts)
	if err != nil {
		return fmt.Errorf("failed to marshal shifts: %w", err)
	}

	idBytes, _ := machine.ID.MarshalBinary()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO machines (id, name, status, shifts, work_center, department,
		                      created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		idBytes,
		machine.Name,
		string(machine.Status),
		shiftsJSON,
		machine.WorkCenter,
		machine.Department,
		machine.CreatedAt.UnixMilli(),
		machine.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert machine: %w", err)
	}

	if err := insertUnavailable(ctx, tx, idBytes, machine.Unavailable); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID retrieves a machine by its ID.
func (r *MachineRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Machine, error) {
	idBytes, _ := id.MarshalBinary()

	query := `
		SELECT id, name, status, shifts, work_center, department, created_at, updated_at
		FROM machines WHERE id = ?
	`

	row := r.db.conn.QueryRowContext(ctx, query, idBytes)
	machine, err := r.scanMachine(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Kind: "machine", ID: id}
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadUnavailable(ctx, machine); err != nil {
		return nil, err
	}
	return machine, nil
}

// GetByName retrieves a machine by its unique name.
func (r *MachineRepository) GetByName(ctx context.Context, name string) (*domain.Machine, error) {
	query := `
		SELECT id, name, status, shifts, work_center, department, created_at, updated_at
		FROM machines WHERE name = ?
	`

	row := r.db.conn.QueryRowContext(ctx, query, name)
	machine, err := r.scanMachine(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Kind: "machine"}
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadUnavailable(ctx, machine); err != nil {
		return nil, err
	}
	return machine, nil
}

// Update updates an existing machine, rewriting its unavailable hours.
func (r *MachineRepository) Update(ctx context.Context, machine *domain.Machine) error {
	shiftsJSON, _ := json.Marshal(machine.Shifts)
	idBytes, _ := machine.ID.MarshalBinary()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE machines SET name = ?, status = ?, shifts = ?, work_center = ?,
		       department = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, query,
		machine.Name,
		string(machine.Status),
		shiftsJSON,
		machine.WorkCenter,
		machine.Department,
		machine.UpdatedAt.UnixMilli(),
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
		return &domain.NotFoundError{Kind: "machine", ID: machine.ID}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM machine_unavailable_hours WHERE machine_id = ?", idBytes); err != nil {
		return err
	}
	if err := insertUnavailable(ctx, tx, idBytes, machine.Unavailable); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes a machine. Unavailable hours cascade.
func (r *MachineRepository) Delete(ctx context.Context, id uuid.UUID) error {
	idBytes, _ := id.MarshalBinary()
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM machines WHERE id = ?", idBytes)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "machine", ID: id}
	}
	return nil
}

// List retrieves all machines, ordered by name.
func (r *MachineRepository) List(ctx context.Context) ([]*domain.Machine, error) {
	query := `
		SELECT id, name, status, shifts, work_center, department, created_at, updated_at
		FROM machines ORDER BY name ASC
	`

	rows, err := r.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var machines []*domain.Machine
	for rows.Next() {
		machine, err := r.scanMachineRows(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, machine)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, machine := range machines {
		if err := r.loadUnavailable(ctx, machine); err != nil {
			return nil, err
		}
	}

	return machines, nil
}

func insertUnavailable(ctx context.Context, tx *sql.Tx, machineID []byte, unavailable map[string][]int) error {
	if len(unavailable) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO machine_unavailable_hours (machine_id, date, hour) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for date, hours := range unavailable {
		for _, hour := range hours {
			if _, err := stmt.ExecContext(ctx, machineID, date, hour); err != nil {
				return fmt.Errorf("failed to insert unavailable hour: %w", err)
			}
		}
	}
	return nil
}

func (r *MachineRepository) loadUnavailable(ctx context.Context, machine *domain.Machine) error {
	idBytes, _ := machine.ID.MarshalBinary()

	rows, err := r.db.conn.QueryContext(ctx,
		"SELECT date, hour FROM machine_unavailable_hours WHERE machine_id = ?", idBytes)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var date string
		var hour int
		if err := rows.Scan(&date, &hour); err != nil {
			return err
		}
		if machine.Unavailable == nil {
			machine.Unavailable = make(map[string][]int)
		}
		machine.Unavailable[date] = append(machine.Unavailable[date], hour)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for date := range machine.Unavailable {
		sort.Ints(machine.Unavailable[date])
	}
	return nil
}

func (r *MachineRepository) scanMachine(row *sql.Row) (*domain.Machine, error) {
	var machine domain.Machine
	var idBytes, shiftsJSON []byte
	var status string
	var createdAt, updatedAt int64
	var workCenter, department sql.NullString

	err := row.Scan(&idBytes, &machine.Name, &status, &shiftsJSON,
		&workCenter, &department, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	fillMachine(&machine, idBytes, shiftsJSON, status, workCenter, department, createdAt, updatedAt)
	return &machine, nil
}

func (r *MachineRepository) scanMachineRows(rows *sql.Rows) (*domain.Machine, error) {
	var machine domain.Machine
	var idBytes, shiftsJSON []byte
	var status string
	var createdAt, updatedAt int64
	var workCenter, department sql.NullString

	err := rows.Scan(&idBytes, &machine.Name, &status, &shiftsJSON,
		&workCenter, &department, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	fillMachine(&machine, idBytes, shiftsJSON, status, workCenter, department, createdAt, updatedAt)
	return &machine, nil
}

func fillMachine(machine *domain.Machine, idBytes, shiftsJSON []byte,
	status string, workCenter, department sql.NullString, createdAt, updatedAt int64) {

	machine.ID = uuidFromBytes(idBytes)
	machine.Status = domain.MachineStatus(status)
	_ = json.Unmarshal(shiftsJSON, &machine.Shifts)
	machine.CreatedAt = time.UnixMilli(createdAt).UTC()
	machine.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	if workCenter.Valid {
		machine.WorkCenter = workCenter.String
	}
	if department.Valid {
		machine.Department = department.String
	}
}
