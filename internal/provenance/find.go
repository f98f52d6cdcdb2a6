package provenance

// find.go - structural search over a record's steps.

import (
	"fmt"
	"reflect"
)

// SignedByCriterion is a pseudo-field accepted by FindStep: its value is
// matched against the common name of the member that signed the step, rather
// than against the step's own fields. Only available after Verify.
const SignedByCriterion = "signedBy"

// FindStep returns the first step whose JSON form contains the criteria as a
// structural subset: every criteria key must be present in the step with a
// matching value, nested maps are matched recursively, and arrays must match
// element by element. Fields present in the step but absent from the criteria
// are ignored.
//
// When several steps match, the earliest step in record order wins - callers
// that need a specific hop should include discriminating criteria such as
// SignedByCriterion or the step id.
//
// A record carrying signature envelopes must be verified before it can be
// searched.
func (r *Record) FindStep(criteria map[string]any) (*Step, error) {
	if len(criteria) == 0 {
		return nil, NewValidationError("search criteria are required")
	}
	if len(r.envelopes) > 0 && r.state != StateVerified {
		return nil, NewNotVerifiedError("record signatures must be verified before searching steps")
	}

	for i, step := range r.steps {
		fields, err := step.AsMap()
		if err != nil {
			return nil, err
		}

		if r.matchesStep(i, fields, criteria) {
			return step, nil
		}
	}

	return nil, NewStepNotFoundError(fmt.Sprintf("no step matches criteria %v", criteria))
}

func (r *Record) matchesStep(index int, fields map[string]any, criteria map[string]any) bool {
	for key, want := range criteria {
		if key == SignedByCriterion {
			member, ok := want.(string)
			if !ok {
				return false
			}
			identity := r.signerOfStep(index)
			if identity == nil || identity.Member != member {
				return false
			}
			continue
		}

		got, ok := fields[key]
		if !ok || !structuralMatch(want, got) {
			return false
		}
	}
	return true
}

// structuralMatch reports whether got contains want: maps are subset-matched
// recursively, arrays must have equal length and matching elements, and
// scalars are compared with numeric normalization (JSON numbers decode as
// float64, criteria built in Go may use ints).
func structuralMatch(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for key, wv := range w {
			gv, ok := g[key]
			if !ok || !structuralMatch(wv, gv) {
				return false
			}
		}
		return true

	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !structuralMatch(w[i], g[i]) {
				return false
			}
		}
		return true

	case []string:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !structuralMatch(w[i], g[i]) {
				return false
			}
		}
		return true

	default:
		return scalarEqual(want, got)
	}
}

func scalarEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	// criteria values may hold non-comparable types; == would panic on those
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
