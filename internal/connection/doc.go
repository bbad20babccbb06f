// Package connection turns discovered device identifiers into live,
// message-receiving input connections.
//
// An Attempter makes one bounded-time effort to open a device: the open is
// raced against a timer (1000 ms by default) and, when the timer wins, the
// open's context is cancelled and the attempt reports ErrAttemptTimedOut.
// Cancellation is best-effort, so a port that finishes opening after its
// attempt was settled is closed and never registered.
//
// A Manager runs attempts for each device (three by default, with no delay in
// between), keeps at most one Connection per device, feeds every incoming
// message through the decoder and forwards NoteOn and ControlChange events to
// the registered handler.
//
// Device states:
//
//	UNATTEMPTED -> ATTEMPTING -> CONNECTED
//	                   |
//	                   v
//	               RETRYING -> ATTEMPTING ... -> GAVE_UP
//	CONNECTED -> DISCONNECTED (DisconnectAll)
package connection
