// Package metrics exposes prometheus metrics for engine runs.
package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "crucible"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of engine runs",
	}, []string{
		"run_id",
		"result",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Total number of tests found per run",
	}, []string{
		"run_id",
	})

	testsSuccessful = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_successful",
		Help:      "Number of successful tests per run",
	}, []string{
		"run_id",
	})

	testsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_failed",
		Help:      "Number of failed tests per run",
	}, []string{
		"run_id",
	})

	testsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_skipped",
		Help:      "Number of skipped tests per run",
	}, []string{
		"run_id",
	})

	testsAborted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_aborted",
		Help:      "Number of aborted tests per run",
	}, []string{
		"run_id",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of engine runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

// RecordError increments the error counter for the given label.
func RecordError(label string) {
	errorsTotal.WithLabelValues(label).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordRun records the aggregated outcome of one engine run.
func RecordRun(runID, result string, total, successful, failed, skipped, aborted int64, duration time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	testsTotal.WithLabelValues(runID).Add(float64(total))
	testsSuccessful.WithLabelValues(runID).Add(float64(successful))
	testsFailed.WithLabelValues(runID).Add(float64(failed))
	testsSkipped.WithLabelValues(runID).Add(float64(skipped))
	testsAborted.WithLabelValues(runID).Add(float64(aborted))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
