package ports

// RandomSource yields unbiased random bytes. A short read or an error is fatal
// to the run that requested it.
type RandomSource interface {
	Read(p []byte) (n int, err error)
}
