// Package countdown implements a resumable seconds countdown.
//
// A Controller owns a decrementing counter and a repeating ticker. It reports
// transitions to an Observer (or, through ChannelObserver, as a stream of Events)
// and never touches storage itself: callers that want a countdown to survive a
// restart persist the value from their OnTick/OnComplete callbacks and feed it
// back as the initial value of a new Controller with AutoStart set.
package countdown
