// Package graph orders nodes connected by depends-on edges. It is used to
// sequence planning units and to validate work item dependencies.
package graph
