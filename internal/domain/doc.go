// Package domain models wildfire danger observations and device locations.
//
// # Data Sources
//
// Fire danger ratings derive from the Canadian Fire Weather Index (FWI)
// as published by the European Forest Fire Information System (EFFIS,
// https://forest-fire.emergency.copernicus.eu/). The primary provider is
// the EFFIS WFS endpoint serving current FWI values; the secondary
// provider is the Met Office Fire Severity Index, which only covers
// England and Wales, so it is consulted only for coordinates inside the
// UK bounding box (longitude -12..3, latitude 49..62).
//
// # Fire Danger Classes
//
// Severity uses the six EFFIS fire danger classes on the FWI scale:
//
//	FWI  <5.2  very low
//	FWI <11.2  low
//	FWI <21.3  moderate
//	FWI <38.0  high
//	FWI <50.0  very high
//	FWI ≥50.0  extreme
//
// Classes are ordered; comparing two [Level] values compares severity.
// See [LevelFromIndex].
//
// # Observation Tags
//
// Every observation carries a Source (which resolution stage produced
// it: primary, secondary, cache, synthetic) and a Freshness (live,
// cached, synthetic). Cache reads keep the original Source and only
// downgrade Freshness to "cached", so callers can always tell where a
// number originally came from. Synthetic observations carry no index
// value at all: the service estimates a severity tier when every data
// path fails, but it never invents an FWI number.
//
// # Error Taxonomy
//
// All failures crossing package boundaries are [ServiceError] values
// with a fixed category set (validation, not_found, service_unavailable,
// network, parse, general). Upstream HTTP statuses map as:
//
//	404 → not_found | 503 → service_unavailable | other non-2xx → general
//
// The raw status is preserved on the error so retry policy can separate
// client-side rejections (4xx, terminal) from transient faults (5xx,
// retryable). See [MapStatus].
//
// # Coordinate Privacy
//
// Raw coordinates identify a household. Log statements must never carry
// full-precision values; [Coordinate.Redacted] rounds to two decimal
// places (roughly 1.1 km) and is the only coordinate form that may
// reach a log handler.
package domain
