package shield

// commandQueue is the FIFO of commands waiting for the active slot.
type commandQueue struct {
	items []*Command
}

func (q *commandQueue) Len() int {
	return len(q.items)
}

func (q *commandQueue) Push(cmd *Command) {
	q.items = append(q.items, cmd)
}

func (q *commandQueue) Pop() *Command {
	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return head
}

func (q *commandQueue) ContainsKey(key string) bool {
	for _, cmd := range q.items {
		if cmd.key == key {
			return true
		}
	}
	return false
}

func (q *commandQueue) Snapshot() []Command {
	out := make([]Command, 0, len(q.items))
	for _, cmd := range q.items {
		out = append(out, cmd.snapshot())
	}
	return out
}

func (c *Command) snapshot() Command {
	cp := *c
	cp.Expected = c.Expected.clone()
	if c.Original != nil {
		cp.Original = make(map[string]any, len(c.Original))
		for k, v := range c.Original {
			cp.Original[k] = v
		}
	}
	return cp
}
