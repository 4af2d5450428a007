package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	datasetLoads         atomic.Int64
	datasetLoadFailures  atomic.Int64
	integrityFailures    atomic.Int64
	recordsLoaded        atomic.Int64
	recordsRejected      atomic.Int64
	snapshotRecords      atomic.Int64
	snapshotReloads      atomic.Int64
	summaryCacheHits     atomic.Int64
	summaryCacheMisses   atomic.Int64
	dashboardQueryErrors atomic.Int64
)

var (
	dashboardQueriesMu   sync.Mutex
	dashboardQueriesByOp = map[string]int64{}
)

func ObserveLoad(records, rejected int) {
	datasetLoads.Add(1)
	recordsLoaded.Add(int64(records))
	recordsRejected.Add(int64(rejected))
}

func ObserveLoadFailure(integrity bool) {
	datasetLoadFailures.Add(1)
	if integrity {
		integrityFailures.Add(1)
	}
}

// ObserveSnapshot records the size of the snapshot currently served.
func ObserveSnapshot(records int) {
	snapshotRecords.Store(int64(records))
	snapshotReloads.Add(1)
}

func ObserveCache(hit bool) {
	if hit {
		summaryCacheHits.Add(1)
		return
	}
	summaryCacheMisses.Add(1)
}

func ObserveQuery(op string, err error) {
	dashboardQueriesMu.Lock()
	dashboardQueriesByOp[op]++
	dashboardQueriesMu.Unlock()
	if err != nil {
		dashboardQueryErrors.Add(1)
	}
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeText(w)
}

func writeText(w io.Writer) {
	counter := func(name, help string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n", name, value)
	}

	counter("healthreport_dataset_loads_total", "Dataset imports that completed.", datasetLoads.Load())
	counter("healthreport_dataset_load_failures_total", "Dataset imports that failed.", datasetLoadFailures.Load())
	counter("healthreport_dataset_integrity_failures_total", "Dataset imports rejected for data integrity violations.", integrityFailures.Load())
	counter("healthreport_dataset_records_loaded_total", "Patient records accepted by imports.", recordsLoaded.Load())
	counter("healthreport_dataset_records_rejected_total", "Patient records skipped by imports.", recordsRejected.Load())
	counter("healthreport_snapshot_reloads_total", "In-memory snapshot swaps.", snapshotReloads.Load())
	counter("healthreport_summary_cache_hits_total", "Summary cache hits.", summaryCacheHits.Load())
	counter("healthreport_summary_cache_misses_total", "Summary cache misses.", summaryCacheMisses.Load())
	counter("healthreport_dashboard_query_errors_total", "Dashboard queries that returned an error.", dashboardQueryErrors.Load())

	fmt.Fprintf(w, "# HELP healthreport_snapshot_records Patient records in the served snapshot.\n")
	fmt.Fprintf(w, "# TYPE healthreport_snapshot_records gauge\n")
	fmt.Fprintf(w, "healthreport_snapshot_records %d\n", snapshotRecords.Load())

	dashboardQueriesMu.Lock()
	ops := make([]string, 0, len(dashboardQueriesByOp))
	for op := range dashboardQueriesByOp {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	fmt.Fprintf(w, "# HELP healthreport_dashboard_queries_total Dashboard queries by operation.\n")
	fmt.Fprintf(w, "# TYPE healthreport_dashboard_queries_total counter\n")
	for _, op := range ops {
		fmt.Fprintf(w, "healthreport_dashboard_queries_total{op=%q} %d\n", op, dashboardQueriesByOp[op])
	}
	dashboardQueriesMu.Unlock()
}
