// Package scheduler drives block execution on a single logical clock.
//
// The clock ("elapsed") counts seconds. Each loop iteration runs every block
// whose interval divides the current clock value, one after another in
// registry order, then sleeps one quantum and advances the clock by one.
// The whole seconds a command takes are added to the clock as soon as it
// finishes, so slow commands shift the phase of every later interval check.
// That drift is intentional and is not corrected.
//
// After every single block update the aggregate line is rebuilt and handed
// to the publisher; three blocks due in one tick produce three publishes.
package scheduler
