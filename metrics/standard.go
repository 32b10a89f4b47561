package metrics

// Pre-defined sealbid metrics, all registered in DefaultRegistry.
var (
	// BatchSize is the number of labels in the current run.
	BatchSize = DefaultRegistry.Gauge("batch.size")

	// LedgerQueries counts read-only ledger calls (phase, sealed bid, balance).
	LedgerQueries = DefaultRegistry.Counter("ledger.queries")
	// LedgerLatency records ledger call latency in milliseconds.
	LedgerLatency = DefaultRegistry.Histogram("ledger.latency_ms")

	// TxSubmitted counts mutating ledger calls that returned a successful receipt.
	TxSubmitted = DefaultRegistry.Counter("tx.submitted")
	// TxFailed counts mutating ledger calls that errored or reverted.
	TxFailed = DefaultRegistry.Counter("tx.failed")

	// BidsPersisted counts bid records durably written.
	BidsPersisted = DefaultRegistry.Counter("bids.persisted")
	// ArtifactsRecorded counts transaction artifacts written.
	ArtifactsRecorded = DefaultRegistry.Counter("artifacts.recorded")
)
