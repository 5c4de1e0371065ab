/*
Package clock abstracts wall-clock time for Cadence's repeating tasks and
deferred pre-posting alerts.

Components that read the time, arm timers or run tickers take a Clock
instead of calling the time package directly. Production wiring passes
Real(); tests pass Fake() and drive time with Advance, which fires due
AfterFunc callbacks synchronously and pushes ticks to fake tickers.

	fc := clock.Fake(time.Date(2025, 7, 6, 9, 0, 0, 0, time.UTC))
	fired := false
	fc.AfterFunc(10*time.Minute, func() { fired = true })
	fc.Advance(10 * time.Minute) // fired == true
*/
package clock
