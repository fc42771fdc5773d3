package lang

import "github.com/verveworks/verve/internal/value"

// Preposition connects a verb to its object and scopes what the verb may do.
type Preposition string

// The prepositions the built-in vocabulary understands.
const (
	PrepFrom Preposition = "from"
	PrepInto Preposition = "into"
	PrepIn   Preposition = "in"
	PrepOf   Preposition = "of"
	PrepAs   Preposition = "as"
	PrepTo   Preposition = "to"
)

// ResultRef names the variable a statement binds its result to.
type ResultRef struct {
	Base       string   `json:"base"`
	Specifiers []string `json:"specifiers,omitempty"`
	SchemaName string   `json:"schema_name,omitempty"`
}

// ObjectRef names the statement's operand: either a prior result variable or
// a literal. Specifiers are a field path into the resolved value; they are
// metadata for the action, not separate data-flow edges.
type ObjectRef struct {
	Preposition Preposition  `json:"preposition"`
	Base        string       `json:"base"`
	Specifiers  []string     `json:"specifiers,omitempty"`
	Literal     value.Value  `json:"literal,omitempty"`
}

// IsLiteral reports whether the object carries an inline literal instead of
// referencing a variable.
func (o ObjectRef) IsLiteral() bool {
	return o.Literal != nil
}

// CompareOp is a predicate comparison operator.
type CompareOp string

// Predicate operators. String comparison for Eq/Ne is exact; ordering
// operators require numbers.
const (
	OpEq CompareOp = "eq"
	OpNe CompareOp = "ne"
	OpGt CompareOp = "gt"
	OpGe CompareOp = "ge"
	OpLt CompareOp = "lt"
	OpLe CompareOp = "le"
)

// Predicate is an element-wise condition carried by filter-class statements.
// Path selects a field of each element ("" means the element itself).
type Predicate struct {
	Path    string      `json:"path,omitempty"`
	Op      CompareOp   `json:"op"`
	Operand value.Value `json:"operand"`
}

// TransitionSpec carries the expected and target states for an accept
// statement. The validator checks the current value against From only.
type TransitionSpec struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Statement is one verb-statement of a feature set. Produced by the parser,
// read-only to the runtime. With is the secondary operand a few verbs take
// ("combine a with b"); it participates in data-flow like Object does.
type Statement struct {
	Verb   string     `json:"verb"`
	Result ResultRef  `json:"result"`
	Object ObjectRef  `json:"object"`
	With   *ObjectRef `json:"with,omitempty"`
	Guard  string     `json:"guard,omitempty"`
	Where  *Predicate `json:"where,omitempty"`

	// Path is the dot-notation field path projection verbs (pick) apply per
	// element and aggregate verbs apply before folding.
	Path string `json:"path,omitempty"`

	// Target names the verb's destination where that is a name rather than
	// data: the repository for store, the alias for publish, the event type
	// for announce.
	Target string `json:"target,omitempty"`

	Transition *TransitionSpec `json:"transition,omitempty"`
}

// Reads returns the variable names the statement's operands reference, in
// operand order. Literals contribute nothing. Verbs whose object base is a
// name rather than a variable are the dispatcher's concern; the graph
// builder filters those against the registry.
func (s Statement) Reads() []string {
	var names []string
	if !s.Object.IsLiteral() && s.Object.Base != "" {
		names = append(names, s.Object.Base)
	}
	if s.With != nil && !s.With.IsLiteral() && s.With.Base != "" {
		names = append(names, s.With.Base)
	}
	return names
}

// FeatureSet is one named, ordered sequence of statements - the unit of
// execution. Loaded once and never mutated; instantiated per triggering event.
type FeatureSet struct {
	Name       string      `json:"name"`
	Activity   string      `json:"activity"`
	Statements []Statement `json:"statements"`
}
