// Package lock provides a non-blocking distributed mutex backed by a shared
// key-value store. A lock record lives under "lock:<name>" and holds the
// identity of its holder, "<instanceID>-<callerID>", together with a TTL after
// which the store drops it on its own.
//
// TryLock issues a single set-if-absent and reports contention as false.
// Unlock deletes the record only when it still carries the caller's identity,
// in one atomic step on the store side, so a holder whose lock already expired
// can never remove a lock that someone else has since acquired.
//
// Locks are not renewed. A critical section that outlives its TTL may overlap
// with the next holder.
package lock
