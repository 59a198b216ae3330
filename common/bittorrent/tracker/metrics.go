package tracker

import (
	"github.com/zeromicro/go-zero/core/metric"
)

const (
	metricsNamespace = "bt_announce"
	metricsSubsystem = "tracker"
)

var (
	metricTrackerSend    metric.CounterVec
	metricTrackerReceive metric.CounterVec
	metricTrackerResult  metric.CounterVec
)

func init() {
	metricTrackerSend = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "send",
		Labels:    []string{"action", "attempt"},
	})
	metricTrackerReceive = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "receive",
		Labels:    []string{"action", "verdict"},
	})
	metricTrackerResult = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "result",
		Labels:    []string{"action", "result"},
	})
}
