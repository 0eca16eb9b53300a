package ports

// Unwrapper is implemented by decorators around a Store.
type Unwrapper interface {
	Unwrap() Store
}

// As finds the first store in the decorator chain starting at s that implements T.
func As[T any](s any) (T, bool) {
	for s != nil {
		if t, ok := s.(T); ok {
			return t, true
		}
		u, ok := s.(Unwrapper)
		if !ok {
			break
		}
		s = u.Unwrap()
	}
	var zero T
	return zero, false
}
