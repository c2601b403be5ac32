package oigcloud

import (
	"context"
	"errors"
	"sort"

	"github.com/spf13/cast"
)

var (
	ErrAuthentication     = errors.New("oigcloud: authentication failed")
	ErrNoBox              = errors.New("oigcloud: no box found in stats")
	ErrUnexpectedResponse = errors.New("oigcloud: unexpected response")
)

// CloudClient is the subset of the OIG Cloud API the bridge talks to.
type CloudClient interface {
	Authenticate(ctx context.Context) error
	GetStats(ctx context.Context) (Stats, error)
	SetBoxMode(ctx context.Context, mode int) error
	SetGridDelivery(ctx context.Context, enabled bool) error
	SetGridDeliveryLimit(ctx context.Context, limit int) error
	SetBoilerMode(ctx context.Context, mode int) error
}

// Stats is the json.php payload: one object per box id, each holding the
// parameter tables (box_prms, invertor_prms, ...) of that box.
type Stats map[string]any

// Box returns the first box of the payload. Box ids are sorted so the choice
// is stable across polls.
func (s Stats) Box() (string, BoxStats, error) {
	if len(s) == 0 {
		return "", nil, ErrNoBox
	}
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := cast.ToStringMapE(s[ids[0]])
	if err != nil {
		return "", nil, ErrNoBox
	}
	return ids[0], BoxStats(data), nil
}

type BoxStats map[string]any

// Node returns a value from a parameter table, e.g. Node("box_prms", "mode").
func (b BoxStats) Node(table, key string) (any, bool) {
	t, ok := b[table]
	if !ok {
		return nil, false
	}
	m, err := cast.ToStringMapE(t)
	if err != nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

func (b BoxStats) Queen() bool {
	return cast.ToBool(b["queen"])
}
