package value

// Equal reports deep structural equality. Lists compare element-by-element
// in order; maps compare key-by-key recursively. Use EqualAsMultiset where
// set-style semantics are specified.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		switch b.(type) {
		case nil, Null:
			return true
		}
		return false
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Map:
		bv, ok := b.(Map)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, exists := bv[k]
			if !exists || !Equal(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EqualAsMultiset reports whether two lists hold the same elements with the
// same multiplicities, ignoring order. Quadratic, which is fine for the
// collection sizes set-style operations see.
func EqualAsMultiset(a, b List) bool {
	if len(a) != len(b) {
		return false
	}
	matched := make([]bool, len(b))
	for _, av := range a {
		found := false
		for j, bv := range b {
			if matched[j] {
				continue
			}
			if Equal(av, bv) {
				matched[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
