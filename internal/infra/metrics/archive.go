package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(archiveWritesTotal, searchQueriesTotal) }

var archiveWritesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "archive_writes_total",
		Help: "Archive mutations by op (save/edit/delete).",
	},
	[]string{"op"},
)

var searchQueriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "archive_search_total",
		Help: "Hashtag searches by outcome (hit/empty/denied).",
	},
	[]string{"outcome"},
)

func IncArchiveWrite(op string) { archiveWritesTotal.WithLabelValues(norm(op)).Inc() }

func IncSearch(outcome string) { searchQueriesTotal.WithLabelValues(norm(outcome)).Inc() }
