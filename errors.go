package pidscan

import "errors"

var (
	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("pidscan: session not found")

	// ErrSessionCancelled is returned when an operation observes a session
	// that was cancelled mid-pipeline.
	ErrSessionCancelled = errors.New("pidscan: session cancelled")

	// ErrInvalidUpload is returned for an unreadable or empty upload.
	ErrInvalidUpload = errors.New("pidscan: invalid upload")

	// ErrUnsupportedKind is returned when a session's detected kind has no
	// registered pipeline.
	ErrUnsupportedKind = errors.New("pidscan: unsupported document kind")

	// ErrParseFailure is returned when VLM output cannot be recovered into
	// JSON by any strategy (spec §4.5/§7 ParseFailure).
	ErrParseFailure = errors.New("pidscan: VLM output unparseable")

	// ErrModelUnavailable covers authentication failure, quota exhaustion,
	// and network errors from a VLM or chat provider (spec §7 ModelUnavailable).
	ErrModelUnavailable = errors.New("pidscan: model unavailable")

	// ErrTableCropFailure is returned when the BOM table crop render fails;
	// the drawing pass proceeds without it (spec §7 TableCropFailure).
	ErrTableCropFailure = errors.New("pidscan: table crop render failed")

	// ErrPageRenderFailure is returned when a document cannot be opened for
	// rendering; the engine then fails the whole session.
	ErrPageRenderFailure = errors.New("pidscan: page render failed")

	// ErrLegendExtractionFailure triggers the text-layout fallback (spec §7
	// LegendExtractionFailure).
	ErrLegendExtractionFailure = errors.New("pidscan: legend extraction failed")

	// ErrReconciliationSkipped is non-fatal; the page is emitted without a
	// comparison block (spec §7 ReconciliationSkipped).
	ErrReconciliationSkipped = errors.New("pidscan: reconciliation skipped")

	// ErrPersistenceFailure is fatal to the whole session (spec §7 PersistenceFailure).
	ErrPersistenceFailure = errors.New("pidscan: persistence failed")

	// ErrNonSelectQuery is returned by the chat surface's SQL guard when the
	// translated statement is not a read-only SELECT.
	ErrNonSelectQuery = errors.New("pidscan: only SELECT statements are permitted")
)
