package generic

// Void is the element type of a Set.
type Void struct{}

func NewVoid() Void {
	return Void{}
}

// Set is an unordered collection of distinct values. The zero value is not usable; create one with NewSet.
type Set[T comparable] map[T]Void

func NewSet[T comparable](items ...T) Set[T] {
	s := make(Set[T], len(items))
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add returns false if item was already present.
func (s Set[T]) Add(item T) bool {
	if _, found := s[item]; found {
		return false
	}
	s[item] = NewVoid()
	return true
}

func (s Set[T]) Clear() {
	for item := range s {
		delete(s, item)
	}
}

func (s Set[T]) Clone() Set[T] {
	res := make(Set[T], len(s))
	for item := range s {
		res[item] = NewVoid()
	}
	return res
}

// Contains returns true only if every item is present.
func (s Set[T]) Contains(items ...T) bool {
	for _, item := range items {
		if _, found := s[item]; !found {
			return false
		}
	}
	return true
}

func (s Set[T]) Count() int {
	return len(s)
}

// Remove returns false if item was not present.
func (s Set[T]) Remove(item T) bool {
	if _, found := s[item]; !found {
		return false
	}
	delete(s, item)
	return true
}

func (s Set[T]) ToSlice() []T {
	slice := make([]T, 0, len(s))
	for item := range s {
		slice = append(slice, item)
	}
	return slice
}
