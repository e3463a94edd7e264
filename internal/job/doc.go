// Package job executes queued jobs. Engine drives one job through its stage
// sequence and finalizes it exactly once; Worker claims the oldest queued
// job and hands it to the engine; Runner polls in the background and fails
// jobs left running by an interrupted process.
package job
