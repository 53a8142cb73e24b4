// Package rate implements Redis fixed-window counters used by the reference
// backend to throttle credential endpoints.
//
// A counter is created by the first Hit in a window (INCR followed by EXPIRE)
// and disappears when the window elapses. Keys have the form
// "<prefix><scope>:<subject>".
package rate
