package hw

// Poller is a bounded busy-wait: at most MaxAttempts evaluations of the
// condition, with Delay between attempts. Delay is injectable so tests
// can run without a clock. The zero Delay means no pause between polls.
type Poller struct {
	MaxAttempts int
	Delay       func()
}

// Poll evaluates cond up to MaxAttempts times and reports whether it
// became true within the bound. It never blocks indefinitely.
func (p Poller) Poll(cond func() bool) bool {
	for i := 0; i < p.MaxAttempts; i++ {
		if cond() {
			return true
		}
		if p.Delay != nil {
			p.Delay()
		}
	}
	return false
}
