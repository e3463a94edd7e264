// Package domain contains the planning entities (projects, sprints, planning
// units, work items) and the generation jobs that produce them, together with
// the status state machines that govern how they change.
package domain
