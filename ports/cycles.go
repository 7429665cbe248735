package ports

// CycleSource returns a high-resolution, normally increasing tick counter.
// A later read smaller than an earlier one means the counter wrapped.
type CycleSource interface {
	Now() int64
	Name() string
}
