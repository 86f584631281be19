package taskname

const (
	// Owned by this control plane.
	SettlementProcessPending = "settlement:process_pending"
	ViewingSweepStale        = "viewing:sweep_stale"

	// Consumed by the transcoding workers; the catalog only enqueues.
	VideoTranscode = "video:transcode"
)
