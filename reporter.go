package eventadmin

import (
	"github.com/robfig/cron/v3"
)

// StatsReporter periodically logs an Admin snapshot on a cron schedule, matching
// the teacher's pattern of a robfig/cron-driven background reporter rather than a
// bespoke ticker goroutine for anything expressed as a schedule instead of a fixed
// interval (operators commonly want "every minute" or "0 */5 * * * *", not a
// hardcoded Go duration).
type StatsReporter struct {
	admin *Admin
	cron  *cron.Cron
}

// NewStatsReporter builds a reporter that logs admin's Snapshot() on schedule
// (six-field cron syntax with a leading seconds field, e.g. "*/30 * * * * *", as
// parsed under cron.WithSeconds()). The reporter is not started until Start is called.
func NewStatsReporter(admin *Admin, schedule string) (*StatsReporter, error) {
	c := cron.New(cron.WithSeconds())
	r := &StatsReporter{admin: admin, cron: c}
	_, err := c.AddFunc(schedule, r.report)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *StatsReporter) report() {
	snap := r.admin.Snapshot()
	r.admin.logger.Info("eventadmin stats",
		"state", snap.State, "handlers", snap.HandlerCount, "queue_depth", snap.QueueDepth)
}

// Start begins the cron schedule.
func (r *StatsReporter) Start() { r.cron.Start() }

// Stop halts the schedule, waiting for any in-flight report to finish.
func (r *StatsReporter) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
