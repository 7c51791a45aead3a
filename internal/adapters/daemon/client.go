package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Client is a client for communicating with the daemon.
type Client struct {
	socketPath string
	conn       net.Conn
	reader     *bufio.Reader
	timeout    time.Duration
}

// NewClient creates a new daemon client.
func NewClient(planfabDir string) (*Client, error) {
	socketPath := filepath.Join(planfabDir, "planfab.sock")

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon not running (socket not found)")
	}

	return &Client{
		socketPath: socketPath,
		timeout:    120 * time.Second,
	}, nil
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Call makes an RPC call to the daemon.
func (c *Client) Call(ctx context.Context, method string, params map[string]interface{}) (map[string]interface{}, error) {
	if c.conn == nil {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}

	req := Request{
		Method: method,
		Params: params,
		ID:     uuid.New().String(),
	}

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	reqBytes = append(reqBytes, '\n')

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}

	if _, err := c.conn.Write(reqBytes); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(deadline)
	} else {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Error != "" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	if result, ok := resp.Result.(map[string]interface{}); ok {
		return result, nil
	}

	return nil, nil
}

// Status gets the daemon status.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	return c.Call(ctx, "status", nil)
}

// CreateTask registers a new production order.
func (c *Client) CreateTask(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	return c.Call(ctx, "task.create", params)
}

// ListTasks lists production orders, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string) ([]interface{}, error) {
	params := map[string]interface{}{}
	if status != "" {
		params["status"] = status
	}

	resp, err := c.Call(ctx, "task.list", params)
	if err != nil {
		return nil, err
	}

	if tasks, ok := resp["tasks"].([]interface{}); ok {
		return tasks, nil
	}

	return nil, nil
}

// GetTask retrieves a single task.
func (c *Client) GetTask(ctx context.Context, id string) (map[string]interface{}, error) {
	return c.Call(ctx, "task.get", map[string]interface{}{"id": id})
}

// ScheduleSlot places a task at an explicit slot.
func (c *Client) ScheduleSlot(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
	return c.Call(ctx, "schedule.slot", params)
}

// ScheduleAppend places a task at the earliest feasible end-of-queue window.
func (c *Client) ScheduleAppend(ctx context.Context, taskID, machineID string) (map[string]interface{}, error) {
	return c.Call(ctx, "schedule.append", map[string]interface{}{
		"task_id":    taskID,
		"machine_id": machineID,
	})
}

// GetQueue returns a machine's committed queue.
func (c *Client) GetQueue(ctx context.Context, machineID string) ([]interface{}, error) {
	resp, err := c.Call(ctx, "queue.get", map[string]interface{}{"machine_id": machineID})
	if err != nil {
		return nil, err
	}

	if entries, ok := resp["entries"].([]interface{}); ok {
		return entries, nil
	}

	return nil, nil
}

// ListMachines lists the machine park.
func (c *Client) ListMachines(ctx context.Context) ([]interface{}, error) {
	resp, err := c.Call(ctx, "machine.list", nil)
	if err != nil {
		return nil, err
	}

	if machines, ok := resp["machines"].([]interface{}); ok {
		return machines, nil
	}

	return nil, nil
}
