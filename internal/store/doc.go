// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the application's core logic, allowing the job engine and pipeline stages
// to remain independent of specific database technologies.
//
// Every work item read hides superseded rows (DeletedAt set) unless the
// method documents otherwise.
package store
