package metrics2

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/10allday-services/syncstorage/go/sklog"
)

// invalidChar is used to force metric and tag names to conform to
// Prometheus's restrictions.
var invalidChar = regexp.MustCompile("([^a-zA-Z0-9_:])")

func clean(s string) string {
	return invalidChar.ReplaceAllLiteralString(s, "_")
}

// promInt64 implements the Int64Metric interface.
type promInt64 struct {
	// i tracks the value of the gauge, because prometheus client lib doesn't
	// support get on Gauge values.
	i     int64
	gauge prometheus.Gauge
}

func (m *promInt64) Get() int64 {
	return atomic.LoadInt64(&(m.i))
}

func (m *promInt64) Update(v int64) {
	atomic.StoreInt64(&(m.i), v)
	m.gauge.Set(float64(v))
}

// promCounter implements the Counter interface.
type promCounter struct {
	*promInt64
}

func (pc *promCounter) Inc(i int64) {
	pc.gauge.Add(float64(i))
	atomic.AddInt64(&(pc.i), i)
}

func (pc *promCounter) Dec(i int64) {
	pc.Inc(-i)
}

func (pc *promCounter) Reset() {
	pc.Update(0)
}

// promLiveness implements the Liveness interface.
type promLiveness struct {
	lastSuccessfulUpdate time.Time
	m                    Int64Metric
	mtx                  sync.Mutex
}

func (l *promLiveness) Get() int64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.m.Get()
}

func (l *promLiveness) Reset() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.lastSuccessfulUpdate = time.Now()
	l.m.Update(0)
}

func (l *promLiveness) update() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.m.Update(int64(time.Since(l.lastSuccessfulUpdate).Seconds()))
}

// promTimer implements the Timer interface.
type promTimer struct {
	begin time.Time
	m     Int64Metric
}

func (t *promTimer) Start() {
	t.begin = time.Now()
}

func (t *promTimer) Stop() time.Duration {
	d := time.Since(t.begin)
	t.m.Update(int64(d))
	return d
}

// promClient implements the Client interface.
type promClient struct {
	int64GaugeVecs map[string]*prometheus.GaugeVec
	int64Gauges    map[string]*promInt64
	int64Mutex     sync.Mutex
}

func newPromClient() *promClient {
	return &promClient{
		int64GaugeVecs: map[string]*prometheus.GaugeVec{},
		int64Gauges:    map[string]*promInt64{},
	}
}

// commonGet does a lot of the common work for each of the Get* funcs.
//
// It returns:
//
//	measurement - A clean measurement name.
//	cleanTags   - A clean set of tags.
//	keys        - A slice of the keys of cleanTags, sorted.
//	gaugeKey    - A name to uniquely identify the metric.
//	gaugeVecKey - A name to uniquely identify the collection of metrics.
func (p *promClient) commonGet(measurement string, tags ...map[string]string) (string, map[string]string, []string, string, string) {
	measurement = clean(measurement)

	cleanTags := map[string]string{}
	keys := []string{}
	for _, t := range tags {
		for k, v := range t {
			key := clean(k)
			if _, ok := cleanTags[key]; !ok {
				keys = append(keys, key)
			}
			cleanTags[key] = v
		}
	}
	sort.Strings(keys)

	gaugeKeySrc := []string{measurement}
	for _, key := range keys {
		gaugeKeySrc = append(gaugeKeySrc, key, cleanTags[key])
	}
	gaugeKey := strings.Join(gaugeKeySrc, "-")
	gaugeVecKey := fmt.Sprintf("%s %v", measurement, keys)

	return measurement, cleanTags, keys, gaugeKey, gaugeVecKey
}

func (p *promClient) GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return p.getPromInt64(name, tags...)
}

func (p *promClient) getPromInt64(name string, tags ...map[string]string) *promInt64 {
	measurement, cleanTags, keys, gaugeKey, gaugeVecKey := p.commonGet(name, tags...)

	p.int64Mutex.Lock()
	defer p.int64Mutex.Unlock()

	if ret, ok := p.int64Gauges[gaugeKey]; ok {
		return ret
	}

	// Didn't find the metric, so we need to look for a GaugeVec to create it
	// under.
	gaugeVec, ok := p.int64GaugeVecs[gaugeVecKey]
	if !ok {
		gaugeVec = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: measurement,
				Help: measurement,
			},
			keys,
		)
		if err := prometheus.Register(gaugeVec); err != nil {
			sklog.Fatalf("Failed to register %q: %s", measurement, err)
		}
		p.int64GaugeVecs[gaugeVecKey] = gaugeVec
	}
	gauge, err := gaugeVec.GetMetricWith(prometheus.Labels(cleanTags))
	if err != nil {
		sklog.Fatalf("Failed to get gauge: %s", err)
	}
	ret := &promInt64{
		gauge: gauge,
	}
	p.int64Gauges[gaugeKey] = ret
	return ret
}

func (p *promClient) GetCounter(name string, tags ...map[string]string) Counter {
	return &promCounter{
		promInt64: p.getPromInt64(name, tags...),
	}
}

func (p *promClient) NewLiveness(name string, tags ...map[string]string) Liveness {
	allTags := append([]map[string]string{{"name": clean(name)}}, tags...)
	l := &promLiveness{
		lastSuccessfulUpdate: time.Now(),
		m:                    p.GetInt64Metric("liveness", allTags...),
	}
	go func() {
		for range time.Tick(time.Minute) {
			l.update()
		}
	}()
	return l
}

func (p *promClient) NewTimer(name string, tags ...map[string]string) Timer {
	allTags := append([]map[string]string{{"name": clean(name)}}, tags...)
	return &promTimer{
		begin: time.Now(),
		m:     p.GetInt64Metric("timer", allTags...),
	}
}

// Validate that the concrete structs faithfully implement their respective
// interfaces.
var _ Int64Metric = (*promInt64)(nil)
var _ Counter = (*promCounter)(nil)
var _ Liveness = (*promLiveness)(nil)
var _ Timer = (*promTimer)(nil)
var _ Client = (*promClient)(nil)
