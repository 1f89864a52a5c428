package ds

// ValueCell holds the current value of one entry. It is never empty: a missing key is
// an absent entry, not an empty cell.
type ValueCell[V any] struct {
	mu       rwMutex
	value    V
	poisoned bool
}

// NewValueCell returns a cell holding v.
func NewValueCell[V any](v V) *ValueCell[V] {
	return &ValueCell[V]{value: v}
}

// Load returns a copy of the current value under the shared lock.
func (c *ValueCell[V]) Load() (V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.poisoned {
		var zero V
		return zero, ErrPoisoned
	}
	return c.value, nil
}

// Swap stores v and returns the previous value.
func (c *ValueCell[V]) Swap(v V) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poisoned {
		var zero V
		return zero, ErrPoisoned
	}
	old := c.value
	c.value = v
	return old, nil
}

// Apply replaces the value with fn(value) and returns the new value.
// If fn does not return, the cell is poisoned.
func (c *ValueCell[V]) Apply(fn func(V) V) (v V, err error) {
	c.mu.Lock()
	done := false
	defer func() {
		if !done {
			c.poisoned = true
		}
		c.mu.Unlock()
	}()
	if c.poisoned {
		done = true
		return v, ErrPoisoned
	}
	c.value = fn(c.value)
	done = true
	return c.value, nil
}
