// Package value defines the runtime's tagged-variant data model.
//
// Every payload, binding, and repository entry in the runtime is a Value:
// one of Null, Bool, Number, String, List, or Map. Values are immutable by
// construction - Set and every other "mutation" returns a fresh Value.
//
// The package also provides dot-notation path traversal (At, Set), deep and
// multiset equality, and a canonical JSON form (MarshalCanonical) used for
// content hashing in the journal.
package value
