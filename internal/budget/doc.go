// Package budget tracks API spend per day against daily and monthly limits.
//
// The Ledger prices planned work (Prices.Quote), answers whether it may run
// (CanSpend), and records what was actually spent (Record). Amounts are held
// as integer micro-dollars. Persistence goes through the Store port; the
// in-memory, Redis, and sqlite implementations each perform Record's
// increment-and-check as one atomic step.
package budget
