package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/wetest/types"
)

const (
	MetricsNamespace = "wetest"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of executed or skipped tests by outcome",
	}, []string{
		"run_id",
		"package",
		"result",
	})

	testDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of individual tests",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{
		"result",
	})

	forcedSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "forced_skips_total",
		Help:      "Count of tests skipped because of a preceding atomic failure",
	}, []string{
		"run_id",
		"scope",
	})

	reportWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "report_writes_total",
		Help:      "Count of JSON report writes",
	}, []string{
		"result",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Outcome counts of the last run",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the last run",
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

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
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

// RecordTest counts one finished test.
func RecordTest(runID string, pkg string, result types.TestStatus, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordTest - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "tests_total",
			"run_id", runID,
			"package", pkg,
			"result", result)
	}
	testsTotal.WithLabelValues(runID, pkg, string(result)).Inc()
	testDuration.WithLabelValues(string(result)).Observe(duration.Seconds())
}

// RecordForcedSkip counts a test skipped by the atomic tracker.
func RecordForcedSkip(runID string, scope string) {
	forcedSkipsTotal.WithLabelValues(runID, scope).Inc()
}

// RecordReportWrite counts a JSON report write attempt.
func RecordReportWrite(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	reportWritesTotal.WithLabelValues(result).Inc()
}

// RecordRun records the totals of a completed run.
func RecordRun(runID string, stats types.ResultStats, duration time.Duration) {
	runResults.WithLabelValues(runID, "total").Set(float64(stats.Total))
	runResults.WithLabelValues(runID, string(types.TestStatusPass)).Set(float64(stats.Passed))
	runResults.WithLabelValues(runID, string(types.TestStatusFail)).Set(float64(stats.Failed))
	runResults.WithLabelValues(runID, string(types.TestStatusSkip)).Set(float64(stats.Skipped))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
