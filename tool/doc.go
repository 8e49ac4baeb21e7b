// Package tool implements the tool-call bridge: named, described callables
// the engine may invoke mid-generation. Dispatch is a notification that must
// return immediately; the callable's owner later reports the result against
// the numeric call identifier, exactly once, from any goroutine. The Ledger
// correlates out-of-order completions and flags double or unknown finishes.
package tool
