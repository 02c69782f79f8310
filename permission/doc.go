// Package permission evaluates scope-qualified authorization decisions
// against an immutable, versioned role table.
//
// # Model
//
// A [Role] bundles (action, resource, scope) grants with a numeric privilege
// level and the set of business modules it may open. Every resource belongs to
// exactly one module, and a role may only hold grants on resources whose module
// it claims. [NewConfig] enforces this and freezes the result.
//
// # Decisions
//
// [Config.HasPermission] and [Config.CanAccessModule] are pure functions of the
// table and the request context. They never perform I/O.
//
// # Administration
//
// [Manager] publishes the live [Config] through an atomic pointer. Role
// changes derive a new version copy-on-write after the [Hierarchy] guards pass;
// readers holding an older snapshot are unaffected.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import goIdentity, jwt, or the stores.
//   - Mutate a published Config.
package permission
