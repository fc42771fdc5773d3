// Package lang holds the statement representation the parser hands to the
// runtime: feature sets, verb-statements, object references, element-wise
// predicates, and transition specs. The runtime treats all of it as
// read-only; lexing and parsing of surface syntax live outside this module.
package lang
