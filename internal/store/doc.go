// Package store defines the persistence boundary of the application: one
// narrow repository interface per entity, shared sentinel errors, and the
// transaction helper. Components depend on these capability interfaces, not
// on a concrete database client, so the storage engine can be swapped freely.
package store
