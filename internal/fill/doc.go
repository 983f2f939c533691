// Package fill carries the last known value of a field across events that
// do not report it.
//
// An absent observation is a nil pointer. It never reads as zero: a field
// that has not been observed yet stays absent until its first value.
package fill
