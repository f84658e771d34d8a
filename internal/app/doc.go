// Package app composes the treasury engine.
//
// The engine is organized as a set of services over shared storage:
//
//   - adminregistry: the admin and reviewer roles with two-phase succession
//   - allowlist: the set of currencies accepted for fee payment
//   - useraccounts: user registration and derived custodial accounts
//   - payments: deposits, fee settlement and batch payouts
//   - groups: group registration and group custodial accounts
//   - rewards: randomized reward pools drawn against a verifiable beacon
//   - dao: time-boxed, currency-weighted governance polls
//
// Services hold no persistent state of their own. All durable state lives
// behind the storage interfaces, with in-memory and Postgres
// implementations. Value movement goes through the LedgerStore, whose
// transfer operations are atomic: either every leg applies or none do.
//
// New wires the services together, defaulting any nil store to a shared
// in-memory backend, and registers each service with the system manager so
// the composition starts and stops deterministically.
package app
