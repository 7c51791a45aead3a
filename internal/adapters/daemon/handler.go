package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/planfab/planfab/internal/core/domain"
	"github.com/planfab/planfab/internal/core/ports"
)

// Request represents a daemon RPC request.
type Request struct {
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
	ID     string                 `json:"id"`
}

// Response represents a daemon RPC response.
type Response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
	ID     string      `json:"id"`
}

// acceptConnections accepts incoming connections.
func (s *Server) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Error("Failed to accept connection", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection handles a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	reader := bufio.NewReader(conn)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("Connection closed", "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendError(conn, "", fmt.Sprintf("invalid request: %v", err))
			continue
		}

		result, err := s.handleRequest(ctx, &req)
		resp := Response{ID: req.ID}
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}

		respBytes, _ := json.Marshal(resp)
		respBytes = append(respBytes, '\n')
		conn.Write(respBytes)
	}
}

func (s *Server) sendError(conn net.Conn, id, msg string) {
	resp := Response{ID: id, Error: msg}
	respBytes, _ := json.Marshal(resp)
	respBytes = append(respBytes, '\n')
	conn.Write(respBytes)
}

// handleRequest routes and handles a request. Schedule conflicts travel
// inside the result envelope; only validation and lookup failures become
// RPC errors.
func (s *Server) handleRequest(ctx context.Context, req *Request) (interface{}, error) {
	switch req.Method {
	case "status":
		return s.GetStatus(), nil

	case "task.create":
		return s.handleTaskCreate(ctx, req.Params)

	case "task.list":
		return s.handleTaskList(ctx, req.Params)

	case "task.get":
		id, err := paramID(req.Params, "id")
		if err != nil {
			return nil, err
		}
		return s.taskSvc.Get(ctx, id)

	case "task.start":
		id, err := paramID(req.Params, "id")
		if err != nil {
			return nil, err
		}
		return s.taskSvc.Start(ctx, id)

	case "task.progress":
		id, err := paramID(req.Params, "id")
		if err != nil {
			return nil, err
		}
		pieces, _ := req.Params["pieces"].(float64)
		return s.taskSvc.Progress(ctx, id, int(pieces))

	case "task.complete":
		id, err := paramID(req.Params, "id")
		if err != nil {
			return nil, err
		}
		return s.taskSvc.Complete(ctx, id)

	case "task.delete":
		id, err := paramID(req.Params, "id")
		if err != nil {
			return nil, err
		}
		if err := s.taskSvc.Delete(ctx, id); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted"}, nil

	case "task.resize":
		id, err := paramID(req.Params, "id")
		if err != nil {
			return nil, err
		}
		qty, _ := req.Params["required_qty"].(float64)
		return s.scheduler.ApplyQuantityEdit(ctx, id, int(qty))

	case "schedule.slot":
		return s.handleScheduleSlot(ctx, req.Params)

	case "schedule.append":
		taskID, err := paramID(req.Params, "task_id")
		if err != nil {
			return nil, err
		}
		machineID, err := paramID(req.Params, "machine_id")
		if err != nil {
			return nil, err
		}
		return s.scheduler.ScheduleAtEnd(ctx, taskID, machineID)

	case "schedule.remove":
		taskID, err := paramID(req.Params, "task_id")
		if err != nil {
			return nil, err
		}
		return s.scheduler.Unschedule(ctx, taskID)

	case "schedule.reorder":
		return s.handleScheduleReorder(ctx, req.Params)

	case "queue.get":
		machineID, err := paramID(req.Params, "machine_id")
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"entries": s.scheduler.Queue(machineID)}, nil

	case "machine.create":
		return s.handleMachineCreate(ctx, req.Params)

	case "machine.list":
		machines, err := s.machines.List(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"machines": machines}, nil

	case "machine.unavailable":
		return s.handleMachineUnavailable(ctx, req.Params)

	case "events.history":
		eventType, _ := req.Params["type"].(string)
		limit, _ := req.Params["limit"].(float64)
		return map[string]interface{}{"events": s.events.History(eventType, int(limit))}, nil

	default:
		return nil, fmt.Errorf("unknown method: %s", req.Method)
	}
}

func (s *Server) handleTaskCreate(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	orderNumber, _ := params["order_number"].(string)
	requiredQty, _ := params["required_qty"].(float64)
	department, _ := params["department"].(string)
	workCenter, _ := params["work_center"].(string)

	var phase domain.Phase
	if raw, ok := params["phase"]; ok {
		body, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid phase: %w", err)
		}
		if err := json.Unmarshal(body, &phase); err != nil {
			return nil, fmt.Errorf("invalid phase: %w", err)
		}
	}

	return s.taskSvc.Create(ctx, orderNumber, phase, int(requiredQty), department, workCenter)
}

func (s *Server) handleTaskList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var filter ports.TaskFilter

	if status, ok := params["status"].(string); ok && status != "" {
		st := domain.TaskStatus(status)
		filter.Status = &st
	}
	if machine, ok := params["machine_id"].(string); ok && machine != "" {
		id, err := uuid.Parse(machine)
		if err != nil {
			return nil, fmt.Errorf("invalid machine_id: %w", err)
		}
		filter.MachineID = &id
	}
	if department, ok := params["department"].(string); ok {
		filter.Department = department
	}
	if workCenter, ok := params["work_center"].(string); ok {
		filter.WorkCenter = workCenter
	}
	if limit, ok := params["limit"].(float64); ok {
		filter.Limit = int(limit)
	}
	if offset, ok := params["offset"].(float64); ok {
		filter.Offset = int(offset)
	}

	tasks, err := s.taskSvc.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tasks": tasks}, nil
}

func (s *Server) handleScheduleSlot(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	taskID, err := paramID(params, "task_id")
	if err != nil {
		return nil, err
	}
	machineID, err := paramID(params, "machine_id")
	if err != nil {
		return nil, err
	}

	date, _ := params["date"].(string)
	hour, _ := params["hour"].(float64)
	minute, _ := params["minute"].(float64)

	var override *float64
	if v, ok := params["duration_hours"].(float64); ok && v > 0 {
		override = &v
	}

	return s.scheduler.ScheduleToSlot(ctx, taskID, machineID, date, int(hour), int(minute), override)
}

func (s *Server) handleScheduleReorder(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	taskID, err := paramID(params, "task_id")
	if err != nil {
		return nil, err
	}
	machineID, err := paramID(params, "machine_id")
	if err != nil {
		return nil, err
	}

	oldIndex, _ := params["old_index"].(float64)
	newIndex, _ := params["new_index"].(float64)

	return s.scheduler.Reorder(ctx, machineID, taskID, int(oldIndex), int(newIndex))
}

func (s *Server) handleMachineCreate(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, _ := params["name"].(string)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	workCenter, _ := params["work_center"].(string)
	department, _ := params["department"].(string)

	var shifts []domain.Shift
	if raw, ok := params["shifts"].([]interface{}); ok {
		for _, v := range raw {
			code, _ := v.(string)
			shift := domain.Shift(code)
			if !shift.Valid() {
				return nil, &domain.ValidationError{Field: "shifts", Reason: fmt.Sprintf("unknown shift %q", code)}
			}
			shifts = append(shifts, shift)
		}
	}
	if len(shifts) == 0 {
		return nil, &domain.ValidationError{Field: "shifts", Reason: "at least one shift is required"}
	}

	machine := domain.NewMachine(name, workCenter, department, shifts)
	if status, ok := params["status"].(string); ok && status != "" {
		machine.Status = domain.MachineStatus(status)
	}

	if err := s.machines.Create(ctx, machine); err != nil {
		return nil, err
	}

	s.logger.Info("Machine created", "name", name, "shifts", len(shifts))
	return machine, nil
}

func (s *Server) handleMachineUnavailable(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	machineID, err := paramID(params, "machine_id")
	if err != nil {
		return nil, err
	}
	date, _ := params["date"].(string)
	if date == "" {
		return nil, &domain.ValidationError{Field: "date", Reason: "must not be empty"}
	}

	machine, err := s.machines.GetByID(ctx, machineID)
	if err != nil {
		return nil, err
	}

	if clear, _ := params["clear"].(bool); clear {
		machine.UnblockDate(date)
	} else {
		raw, _ := params["hours"].([]interface{})
		if len(raw) == 0 {
			return nil, &domain.ValidationError{Field: "hours", Reason: "must not be empty"}
		}
		hours := make([]int, 0, len(raw))
		for _, v := range raw {
			h, _ := v.(float64)
			if h < 0 || h > 23 {
				return nil, &domain.ValidationError{Field: "hours", Reason: "hours must be within 0..23"}
			}
			hours = append(hours, int(h))
		}
		machine.BlockHours(date, hours...)
	}

	if err := s.machines.Update(ctx, machine); err != nil {
		return nil, err
	}
	return machine, nil
}

func paramID(params map[string]interface{}, key string) (uuid.UUID, error) {
	raw, _ := params[key].(string)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("missing %s", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return id, nil
}
