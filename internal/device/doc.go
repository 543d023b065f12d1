// Package device holds the availability state machine and its persistence.
//
// The package has three parts:
//
//   - Evaluate, a pure function that folds one probe result into a
//     Device and reports what must be written, logged and notified.
//   - SQLiteRepository, the device registry keyed by address, which
//     applies an Outcome atomically together with its transition record.
//   - SQLiteTransitionLog, the append-only history of state changes,
//     doubling as the notification outbox.
//
// # State machine
//
//	from                 success            failure (tolerance left)   failure (exhausted)
//	UNKNOWN              UP                 PENDING, counter-1         DOWN, notify*
//	UP                   -                  PENDING, counter-1         DOWN, notify
//	PENDING              UP                 counter-1, no record       DOWN, notify*
//	DOWN                 UP, notify         -                          -
//
// * only if the device was seen UP since registration, unless the
// unconfirmed-down policy is enabled.
//
// A device with SuppressCount N goes from UP to DOWN on exactly the N+1th
// consecutive failure. Any success resets the counter. Only the edges into
// DOWN and out of DOWN produce notifications.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	devices, err := repo.List(ctx)
//	...
//	out := device.Evaluate(dev, reachable, time.Now(), policy)
//	tr, err := repo.Apply(ctx, out)
//
// # Thread Safety
//
// Evaluate is pure. The SQLite types are safe for concurrent use, but
// callers must not apply two outcomes for the same address concurrently;
// the optimistic check in Apply turns such a race into ErrConcurrentUpdate.
package device
