// Package samples provides the two runnable service implementations
// named by the end-to-end scenarios (spec §8): Demo and Login. Neither
// is part of the core the specification describes — sample service
// implementations are explicitly out of scope (spec §1) — but the
// dispatcher has nothing to reflect and invoke without at least these,
// so cmd/servicehost wires them in as the default catalog.
package samples

import "fmt"

// Demo exposes Add, matching scenario 1: "identifier demo -> impl with
// method add(name:string, age:int)".
type Demo struct{}

// Add returns a greeting for name at age; it has no failure mode, which
// makes it useful for the "same request twice produces the same result"
// idempotence property (spec §8).
func (d *Demo) Add(name string, age int) (string, error) {
	return fmt.Sprintf("%s is %d years old", name, age), nil
}
