package rules

import "github.com/expr-lang/expr/vm"

// Rule is a named condition over an evaluation environment. Outcome is the
// label the caller acts on when the condition holds (a playstyle, an abort
// reason, ...).
type Rule struct {
	Name         string      // human-readable identifier
	Priority     int         // higher = evaluated first
	Category     string      // grouping for exclusive semantics
	Exclusive    bool        // if true, blocks lower-priority rules in the same category
	ConditionSrc string      // expr source
	Outcome      string      // label returned to the caller
	program      *vm.Program // compiled bytecode
}
