package prom

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	xhttp "github.com/ulugbek-dev/broadcast-gateway/pkg/http"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/logger"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemBroadcast = "broadcast"
)

const (
	MetricMessagesTotal          = "messages_total"            // labels: outcome
	MetricJobsTotal              = "jobs_total"                // labels: status
	MetricJobsActive             = "jobs_active"               // labels: -
	MetricDeliveryDurationSecond = "delivery_duration_seconds" // labels: outcome
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionGauge = make(map[string]prometheus.Gauge)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

func Create(host string, env string, nameSpace string) error {
	defaultLabels = make(prometheus.Labels)
	defaultLabels["env"] = env
	defaultLabels["instance"] = host
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounterVec(SystemBroadcast, MetricMessagesTotal, []string{"outcome"}))
	hasError(createCounterVec(SystemBroadcast, MetricJobsTotal, []string{"status"}))
	hasError(createGauge(SystemBroadcast, MetricJobsActive))
	hasError(createHistogramVec(SystemBroadcast, MetricDeliveryDurationSecond, []string{"outcome"}))

	return err
}

func ListenAndServer(port string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "url", url)
	if err := s.ListenAndServe(port); err != nil {
		logger.Panic("[metrics-server] http listen error", "error", err)
	}
}

func createCounterVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionCounterVec[subsystem+name] = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionCounterVec[subsystem+name])
}

func createGauge(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionGauge[subsystem+name] = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
	})
	return prometheus.Register(MetricCollectionGauge[subsystem+name])
}

func createHistogramVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionHistogramVec[subsystem+name] = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        "",
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	}, labels)
	return prometheus.Register(MetricCollectionHistogramVec[subsystem+name])
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if MetricSystemEnabled == false {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func AddGauge(subsystem, name string, num float64) {
	if MetricSystemEnabled == false {
		return
	}
	if v, ok := MetricCollectionGauge[subsystem+name]; ok {
		v.Add(num)
		return
	}
	logger.Warn("[metrics-server] gauge not found", "subsystem", subsystem, "name", name)
}

func ObserveHistogramVec(subsystem, name string, num float64, labelValues ...string) {
	if MetricSystemEnabled == false {
		return
	}
	if v, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(num)
		return
	}
	logger.Warn("[metrics-server] histogram not found", "subsystem", subsystem, "name", name)
}
