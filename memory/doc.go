// Package memory contains core.Memory implementations. Depend on the
// core.Memory interface in your code and select an implementation (like the
// in‑memory Store) at wiring time.
package memory
