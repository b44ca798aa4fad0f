package eventadmin

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports engine counters the way the teacher's own
// metrics_exporters.go registers an EventBus prometheus.Collector: handler counts,
// queue depth as a gauge, and dispatch/blacklist counters.
type PrometheusCollector struct {
	admin *Admin

	handlerCount *prometheus.Desc
	queueDepth   *prometheus.Desc
	dispatched   prometheus.Counter
	blacklisted  prometheus.Counter
	queueFull    prometheus.Counter
}

// NewPrometheusCollector builds a collector over admin. Register it with a
// prometheus.Registerer (prometheus.MustRegister(collector)).
func NewPrometheusCollector(admin *Admin) *PrometheusCollector {
	c := &PrometheusCollector{
		admin: admin,
		handlerCount: prometheus.NewDesc("eventadmin_handlers_registered", "Number of registered event handlers.", nil, nil),
		queueDepth:   prometheus.NewDesc("eventadmin_queue_depth", "Current number of entries in the async queue.", nil, nil),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventadmin_dispatched_total",
			Help: "Total synchronous and asynchronous handler invocations.",
		}),
		blacklisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventadmin_handlers_blacklisted_total",
			Help: "Total handlers blacklisted for exceeding the slow-handler threshold.",
		}),
		queueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eventadmin_queue_full_total",
			Help: "Total Post calls rejected because the async queue was full.",
		}),
	}
	admin.OnBlacklist(func(int64, string) { c.blacklisted.Inc() })
	admin.OnLifecycleEvent(func(kind string, _ map[string]any) {
		if kind == "queue_full" {
			c.queueFull.Inc()
		}
	})
	return c
}

// Describe implements prometheus.Collector.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.handlerCount
	ch <- c.queueDepth
	c.dispatched.Describe(ch)
	c.blacklisted.Describe(ch)
	c.queueFull.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.admin.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.handlerCount, prometheus.GaugeValue, float64(snap.HandlerCount))
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(snap.QueueDepth))
	c.dispatched.Collect(ch)
	c.blacklisted.Collect(ch)
	c.queueFull.Collect(ch)
}

// DatadogExporter pushes the same counters to a dogstatsd agent, mirroring the
// teacher's second, DataDog-flavored metrics exporter alongside its Prometheus one.
type DatadogExporter struct {
	client *statsd.Client
	admin  *Admin
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// NewDatadogExporter dials addr (e.g. "127.0.0.1:8125") and begins emitting a queue
// depth gauge and blacklist/queue-full counters at the given interval.
func NewDatadogExporter(addr string, admin *Admin, interval time.Duration) (*DatadogExporter, error) {
	client, err := statsd.New(addr, statsd.WithNamespace("eventadmin."))
	if err != nil {
		return nil, err
	}
	e := &DatadogExporter{client: client, admin: admin, ticker: time.NewTicker(interval), stop: make(chan struct{}), done: make(chan struct{})}

	admin.OnBlacklist(func(int64, string) { _ = client.Incr("handler_blacklisted", nil, 1) })
	admin.OnLifecycleEvent(func(kind string, _ map[string]any) {
		if kind == "queue_full" {
			_ = client.Incr("queue_full", nil, 1)
		}
	})

	go e.loop()
	return e, nil
}

func (e *DatadogExporter) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.ticker.C:
			snap := e.admin.Snapshot()
			_ = e.client.Gauge("queue_depth", float64(snap.QueueDepth), nil, 1)
			_ = e.client.Gauge("handlers_registered", float64(snap.HandlerCount), nil, 1)
		case <-e.stop:
			return
		}
	}
}

// Close stops the periodic push and flushes the statsd client.
func (e *DatadogExporter) Close() error {
	close(e.stop)
	e.ticker.Stop()
	<-e.done
	return e.client.Close()
}
