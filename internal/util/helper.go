package util

// CloneSlice returns a copy of src with length cloneSize, truncating or
// zero padding as needed. A cloneSize of 0 means len(src).
func CloneSlice[T any](src []T, cloneSize int) []T {
	if cloneSize == 0 {
		cloneSize = len(src)
	}
	clone := make([]T, cloneSize)
	copy(clone, src)

	return clone
}
