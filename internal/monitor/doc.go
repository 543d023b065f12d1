// Package monitor runs the iotmon probe cycle.
//
// Each cycle, in order:
//
//  1. rebuilds the device registry if the configuration file changed
//  2. purges old transitions once per local calendar day
//  3. re-sends notifications that were committed but never dispatched
//  4. probes every device in parallel, bounded by monitor.workers
//  5. folds each result into its device through device.Evaluate, commits the
//     outcome, then dispatches and observes the committed transition
//
// Evaluation and persistence happen sequentially after all probes finished,
// so a device row only ever has one writer. A cycle cancelled while probing
// discards its probe results instead of treating them as failures.
//
// The Monitor holds its configuration explicitly. A reload replaces it as a
// whole, together with the prober and notification channels built from it.
package monitor
