// Package utils holds small generic helpers shared across packages.
package utils

// Ptr returns a pointer to v, for populating optional fields inline.
func Ptr[T any](v T) *T {
	return &v
}

// Value dereferences v, returning the zero value for a nil pointer.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}
