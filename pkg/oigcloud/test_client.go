package oigcloud

import (
	"context"
	"sync"
)

// TestCloudClient is an in-memory box. Writes are accepted right away but only
// become visible in the stats after ApplyPending, like the real cloud that
// applies changes asynchronously.
type TestCloudClient struct {
	mu       sync.Mutex
	BoxId    string
	IsQueen  bool
	tables   map[string]map[string]any
	pending  []func()
	AutoSync bool
	Err      error
	Writes   int
}

func NewTestCloudClient() *TestCloudClient {
	return &TestCloudClient{
		BoxId: "2206237016",
		tables: map[string]map[string]any{
			"box_prms":      {"mode": 0, "crcte": 1},
			"invertor_prms": {"to_grid": 1},
			"invertor_prm1": {"p_max_feed_grid": 10000},
			"boiler_prms":   {"manual": 0},
			"actual":        {"bat_c": 82},
		},
	}
}

func (c *TestCloudClient) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Err
}

// SetErr makes every following call fail with err, or succeed again when nil.
func (c *TestCloudClient) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

func (c *TestCloudClient) GetStats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if c.AutoSync {
		c.applyPending()
	}
	box := map[string]any{"queen": c.IsQueen}
	for table, values := range c.tables {
		t := make(map[string]any, len(values))
		for k, v := range values {
			t[k] = v
		}
		box[table] = t
	}
	return Stats{c.BoxId: box}, nil
}

func (c *TestCloudClient) SetBoxMode(ctx context.Context, mode int) error {
	return c.write("box_prms", "mode", mode)
}

func (c *TestCloudClient) SetGridDelivery(ctx context.Context, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	if err := c.write("invertor_prms", "to_grid", value); err != nil {
		return err
	}
	return c.write("box_prms", "crcte", value)
}

func (c *TestCloudClient) SetGridDeliveryLimit(ctx context.Context, limit int) error {
	return c.write("invertor_prm1", "p_max_feed_grid", limit)
}

func (c *TestCloudClient) SetBoilerMode(ctx context.Context, mode int) error {
	return c.write("boiler_prms", "manual", mode)
}

// ApplyPending makes all accepted writes visible.
func (c *TestCloudClient) ApplyPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyPending()
}

func (c *TestCloudClient) Set(table, key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[table][key] = value
}

// Unset drops a node from the stats payload.
func (c *TestCloudClient) Unset(table, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables[table], key)
}

func (c *TestCloudClient) WriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Writes
}

func (c *TestCloudClient) applyPending() {
	for _, fn := range c.pending {
		fn()
	}
	c.pending = nil
}

func (c *TestCloudClient) write(table, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Writes++
	c.pending = append(c.pending, func() {
		c.tables[table][key] = value
	})
	return nil
}

var _ CloudClient = (*Client)(nil)
var _ CloudClient = (*TestCloudClient)(nil)
