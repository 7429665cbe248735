package ports

// SampleExporter receives the differenced in-window ticks of each batch.
// Wrapped (negative) ticks are passed through so offline analysis sees the gaps.
type SampleExporter interface {
	WriteBatch(round int, execTimes []int64) error
	Close() error
}
