// Package events carries job lifecycle notifications between the services
// that create jobs and the background runner that executes them, without
// either side importing the other.
package events
