// Package policygate implements the fail-closed CEL system policy shared
// by the attestation aggregator (fixed rules over the aggregate input)
// and the CLI's emit-anchor command (structural checks over a
// manifest/profile pair before either is trusted).
package policygate

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Gate compiles and evaluates CEL predicates against a variable input,
// caching compiled programs by expression text. A Gate carries a fixed
// set of "system rules" that are always enforced in addition to any
// caller-supplied predicate — the caller can never relax them.
type Gate struct {
	env         *cel.Env
	mu          sync.RWMutex
	programs    map[string]cel.Program
	systemRules []string
}

// New builds a Gate whose CEL environment exposes the named dynamic
// variables, plus the fixed systemRules every evaluation must also pass.
func New(variables []string, systemRules []string) (*Gate, error) {
	opts := make([]cel.EnvOption, 0, len(variables))
	for _, v := range variables {
		opts = append(opts, cel.Variable(v, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("policygate: build CEL environment: %w", err)
	}
	return &Gate{
		env:         env,
		programs:    make(map[string]cel.Program),
		systemRules: systemRules,
	}, nil
}

// Evaluate runs every system rule plus, if non-empty, the caller's
// predicate against input. It is fail-closed: a compile error, eval
// error, or non-bool result is treated as denial, never as "allow".
func (g *Gate) Evaluate(input map[string]any, predicate string) error {
	for i, rule := range g.systemRules {
		allowed, err := g.run(rule, input)
		if err != nil {
			return fmt.Errorf("policygate: system rule %d: %w", i, err)
		}
		if !allowed {
			return fmt.Errorf("policygate: system rule %d denied", i)
		}
	}

	if predicate == "" {
		return nil
	}
	allowed, err := g.run(predicate, input)
	if err != nil {
		return fmt.Errorf("policygate: predicate: %w", err)
	}
	if !allowed {
		return fmt.Errorf("policygate: predicate denied")
	}
	return nil
}

func (g *Gate) run(expr string, input map[string]any) (bool, error) {
	prg, err := g.compiled(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result is not a bool")
	}
	return val, nil
}

func (g *Gate) compiled(expr string) (cel.Program, error) {
	g.mu.RLock()
	prg, hit := g.programs[expr]
	g.mu.RUnlock()
	if hit {
		return prg, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if prg, hit = g.programs[expr]; hit {
		return prg, nil
	}

	ast, issues := g.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := g.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	g.programs[expr] = prg
	return prg, nil
}

// AttestationSystemRules are the fixed rules every attestation aggregate
// input must satisfy regardless of profile: a trusted-set check must
// actually name at least one trusted node, and quorum (when used) must
// be a positive integer.
var AttestationSystemRules = []string{
	`policy.mode != "trusted-set" || size(policy.trustedNodes) > 0`,
	`policy.conflictPolicy != "quorum-pass" || policy.quorum > 0`,
}

// AttestationVariables are the variables visible to an attestation gate
// predicate: the resolved policy and the candidate sources.
var AttestationVariables = []string{"policy", "sources"}

// ManifestSystemRules are the fixed structural rules a partition manifest
// and its governing profile must satisfy before C2/C3 trust it.
var ManifestSystemRules = []string{
	`manifest.schemaVersion == 1`,
	`manifest.algo == "sha256-merkle-v1"`,
	`manifest.count > 0`,
}

// ManifestVariables are the variables visible to a manifest gate
// predicate.
var ManifestVariables = []string{"manifest", "profile"}
