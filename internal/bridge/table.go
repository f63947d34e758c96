package bridge

import (
	"sort"
	"sync"

	"github.com/chaz8081/bluebird-bridge/internal/robot"
)

// Table maps robot names to live connections. Every access goes through
// one mutex so a disconnect cannot race a lookup.
type Table struct {
	mu     sync.Mutex
	robots map[string]*robot.Robot
}

func NewTable() *Table {
	return &Table{robots: make(map[string]*robot.Robot)}
}

// Insert adds r under name. It returns false, leaving the table unchanged,
// if name is taken.
func (t *Table) Insert(name string, r *robot.Robot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.robots[name]; ok {
		return false
	}
	t.robots[name] = r
	return true
}

func (t *Table) Get(name string) (*robot.Robot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.robots[name]
	return r, ok
}

// Remove deletes and returns the entry for name.
func (t *Table) Remove(name string) (*robot.Robot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.robots[name]
	if ok {
		delete(t.robots, name)
	}
	return r, ok
}

// RemoveIf deletes the entry for name only if it is still r, so a late
// teardown cannot evict a newer connection under the same name.
func (t *Table) RemoveIf(name string, r *robot.Robot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.robots[name] != r {
		return false
	}
	delete(t.robots, name)
	return true
}

// Drain empties the table and returns what it held.
func (t *Table) Drain() []*robot.Robot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*robot.Robot, 0, len(t.robots))
	for _, r := range t.robots {
		out = append(out, r)
	}
	t.robots = make(map[string]*robot.Robot)
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.robots)
}

// Names returns the connected names, sorted.
func (t *Table) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.robots))
	for n := range t.robots {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
