package prom

import (
	"errors"
	"fmt"
	"sync"

	xhttp "github.com/nimasrn/donation-ledger/pkg/http"
	"github.com/nimasrn/donation-ledger/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemDonations = "donation"
	SystemLedger    = "ledger"
	SystemGateway   = "gateway"
	SystemEvents    = "events"
)

const (
	MetricDonationsConfirmed   = "confirmed_total"
	MetricDonationAmount       = "confirmed_amount_minor_total"
	MetricAggregateAdjustments = "aggregate_adjustments_total"
	MetricGatewayDuration      = "request_duration_seconds"
	MetricEventsProcessed      = "processed_total"
)

const (
	TypeCounterVec   = "counterVec"
	TypeHistogramVec = "histogramVec"
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

// Create registers every ledger metric. Calling it twice reuses the
// collectors already registered.
func Create(host string, env string, nameSpace string) error {
	defaultLabels = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(createCounterVec(SystemDonations, MetricDonationsConfirmed, []string{"currency", "frequency"}))
	hasError(createCounterVec(SystemDonations, MetricDonationAmount, []string{"currency"}))
	hasError(createCounterVec(SystemLedger, MetricAggregateAdjustments, []string{"entity", "direction"}))
	hasError(createHistogramVec(SystemGateway, MetricGatewayDuration, []string{"endpoint", "outcome"}))
	hasError(createCounterVec(SystemEvents, MetricEventsProcessed, []string{"type", "outcome"}))

	return err
}

func CreateMetric(metricType, metricSubsystem, metricName string, labelsValues ...string) error {
	switch metricType {
	case TypeCounterVec:
		return createCounterVec(metricSubsystem, metricName, labelsValues)
	case TypeHistogramVec:
		return createHistogramVec(metricSubsystem, metricName, labelsValues)
	}
	return fmt.Errorf("metric type %s is not defined", metricType)
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

func register(c prometheus.Collector) (prometheus.Collector, error) {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}

func createCounterVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	c, err := register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	}, labels))
	if err != nil {
		return err
	}
	MetricCollectionCounterVec[subsystem+name] = c.(*prometheus.CounterVec)
	return nil
}

func createHistogramVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	h, err := register(prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	}, labels))
	if err != nil {
		return err
	}
	MetricCollectionHistogramVec[subsystem+name] = h.(*prometheus.HistogramVec)
	return nil
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	lockCreateMetricLock.Lock()
	v, ok := MetricCollectionCounterVec[subsystem+name]
	lockCreateMetricLock.Unlock()
	if ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	lockCreateMetricLock.Lock()
	v, ok := MetricCollectionHistogramVec[subsystem+name]
	lockCreateMetricLock.Unlock()
	if ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

func AddDonationConfirmed(currency, frequency string, amount int64) {
	IncCounterVec(SystemDonations, MetricDonationsConfirmed, currency, frequency)
	AddCounterVec(SystemDonations, MetricDonationAmount, float64(amount), currency)
}

func AddAggregateAdjustment(entity, direction string) {
	IncCounterVec(SystemLedger, MetricAggregateAdjustments, entity, direction)
}

func AddGatewayDuration(endpoint, outcome string, seconds float64) {
	AddHistogramVec(SystemGateway, MetricGatewayDuration, seconds, endpoint, outcome)
}

func AddEventProcessed(eventType, outcome string) {
	IncCounterVec(SystemEvents, MetricEventsProcessed, eventType, outcome)
}
