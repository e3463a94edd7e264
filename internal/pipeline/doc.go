// Package pipeline implements the three task generation passes run for a
// sprint: Draft turns planning units into coarse work items, Refine promotes
// them to medium items with acceptance criteria and dependencies, and Split
// breaks medium items into fine, ready-for-development children.
//
// Each pass can run on its own; passing a nil job ID charges its generation
// calls to the project quota only. Writes of a pass share one transaction.
package pipeline
