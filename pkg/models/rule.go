package models

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleKind identifies the family of a finding.
type RuleKind string

// The nine connascence kinds.
const (
	RuleName      RuleKind = "Name"
	RuleType      RuleKind = "Type"
	RuleMeaning   RuleKind = "Meaning"
	RulePosition  RuleKind = "Position"
	RuleAlgorithm RuleKind = "Algorithm"
	RuleExecution RuleKind = "Execution"
	RuleTiming    RuleKind = "Timing"
	RuleValue     RuleKind = "Value"
	RuleIdentity  RuleKind = "Identity"
)

// Structural rule kinds.
const (
	RuleGodObject          RuleKind = "GodObject"
	RuleDuplicateAlgorithm RuleKind = "DuplicateAlgorithm"
)

// Diagnostic kinds. Diagnostics describe files the engine could not
// analyze; they never count towards metrics.
const (
	RuleParseError   RuleKind = "ParseError"
	RuleIOError      RuleKind = "IOError"
	RuleTimeoutAbort RuleKind = "TimeoutAbort"
)

const nasaPrefix = "NasaRule"

// NasaRuleCount is the size of the NASA-style rule set.
const NasaRuleCount = 10

// NasaRule returns the rule kind for NASA rule n (1-based).
func NasaRule(n int) RuleKind {
	return RuleKind(nasaPrefix + strconv.Itoa(n))
}

// ConnascenceKinds lists the nine connascence kinds in detector order.
func ConnascenceKinds() []RuleKind {
	return []RuleKind{
		RuleName, RuleType, RuleMeaning, RulePosition, RuleAlgorithm,
		RuleExecution, RuleTiming, RuleValue, RuleIdentity,
	}
}

// AllRuleKinds lists every non-diagnostic rule kind.
func AllRuleKinds() []RuleKind {
	kinds := ConnascenceKinds()
	kinds = append(kinds, RuleGodObject, RuleDuplicateAlgorithm)
	for i := 1; i <= NasaRuleCount; i++ {
		kinds = append(kinds, NasaRule(i))
	}
	return kinds
}

// String implements fmt.Stringer.
func (k RuleKind) String() string { return string(k) }

// IsConnascence reports whether k is one of the nine connascence kinds.
func (k RuleKind) IsConnascence() bool {
	switch k {
	case RuleName, RuleType, RuleMeaning, RulePosition, RuleAlgorithm,
		RuleExecution, RuleTiming, RuleValue, RuleIdentity:
		return true
	}
	return false
}

// NasaNumber returns the rule number for a NASA rule kind.
func (k RuleKind) NasaNumber() (int, bool) {
	rest, ok := strings.CutPrefix(string(k), nasaPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > NasaRuleCount {
		return 0, false
	}
	return n, true
}

// IsDiagnostic reports whether k describes an analysis failure rather than a finding.
func (k RuleKind) IsDiagnostic() bool {
	return k == RuleParseError || k == RuleIOError || k == RuleTimeoutAbort
}

// RuleID returns the stable external identifier used in SARIF and IDs.
func (k RuleKind) RuleID() string {
	switch k {
	case RuleName:
		return "CoN"
	case RuleType:
		return "CoT"
	case RuleMeaning:
		return "CoM"
	case RulePosition:
		return "CoP"
	case RuleAlgorithm:
		return "CoA"
	case RuleExecution:
		return "CoE"
	case RuleTiming:
		return "CoTi"
	case RuleValue:
		return "CoV"
	case RuleIdentity:
		return "CoI"
	case RuleGodObject:
		return "GOD"
	case RuleDuplicateAlgorithm:
		return "DUP"
	case RuleParseError:
		return "DIAG-PARSE"
	case RuleIOError:
		return "DIAG-IO"
	case RuleTimeoutAbort:
		return "DIAG-TIMEOUT"
	}
	if n, ok := k.NasaNumber(); ok {
		return fmt.Sprintf("NASA-R%d", n)
	}
	return strings.ToUpper(string(k))
}

// Title returns a short human-readable name.
func (k RuleKind) Title() string {
	if k.IsConnascence() {
		return "Connascence of " + string(k)
	}
	switch k {
	case RuleGodObject:
		return "God Object"
	case RuleDuplicateAlgorithm:
		return "Duplicate Algorithm"
	case RuleParseError:
		return "Parse Error"
	case RuleIOError:
		return "I/O Error"
	case RuleTimeoutAbort:
		return "Timeout"
	}
	if n, ok := k.NasaNumber(); ok {
		return nasaTitles[n-1]
	}
	return string(k)
}

// Description returns a one-sentence explanation of the rule.
func (k RuleKind) Description() string {
	switch k {
	case RuleName:
		return "Multiple components must agree on the name of an entity."
	case RuleType:
		return "Multiple components must agree on the type of an entity."
	case RuleMeaning:
		return "Multiple components must agree on the meaning of particular values."
	case RulePosition:
		return "Multiple components must agree on the order of values."
	case RuleAlgorithm:
		return "Multiple components must agree on a particular algorithm."
	case RuleExecution:
		return "The order of execution of multiple components is important."
	case RuleTiming:
		return "The timing of the execution of multiple components is important."
	case RuleValue:
		return "Several values must change together."
	case RuleIdentity:
		return "Multiple components must reference the same entity."
	case RuleGodObject:
		return "A class has accumulated too many methods or attributes."
	case RuleDuplicateAlgorithm:
		return "Functions in different places implement the same algorithm."
	case RuleParseError:
		return "The file could not be parsed."
	case RuleIOError:
		return "The file could not be read."
	case RuleTimeoutAbort:
		return "The analysis deadline expired before the file was analyzed."
	}
	if n, ok := k.NasaNumber(); ok {
		return nasaDescriptions[n-1]
	}
	return string(k)
}

var nasaTitles = [NasaRuleCount]string{
	"NASA R1: Recursion",
	"NASA R2: Unbounded Loop",
	"NASA R3: Dynamic Allocation",
	"NASA R4: Function Length",
	"NASA R5: Assertion Density",
	"NASA R6: Parameter Count",
	"NASA R7: Unchecked Return Value",
	"NASA R8: Scope Minimization",
	"NASA R9: Restricted Indirection",
	"NASA R10: Warning-Free Compilation",
}

var nasaDescriptions = [NasaRuleCount]string{
	"Functions must not recurse directly or through a cycle of calls.",
	"Every loop must have a statically bounded iteration condition.",
	"Collections must not grow inside long-lived loops after initialization.",
	"Functions must stay within the configured logical line limit.",
	"Functions must contain a minimum number of assertions.",
	"Functions must not take more than the configured number of parameters.",
	"Return values of fallible calls must be checked.",
	"Data must be declared at the smallest possible scope.",
	"Pointer indirection must be limited to a single level.",
	"Code must compile without warnings.",
}
