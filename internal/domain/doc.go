// Package domain models the unified hazard event all source feeds are
// normalized into.
//
// # Feeds
//
// Six independent providers are ingested, each with its own wire format:
//
//	earthquake       USGS FDSN event service (GeoJSON)
//	wildfire         NASA FIRMS active-fire detections (CSV)
//	air_quality      AirNow current observations (JSON)
//	power_outage     county-level utility outage aggregator (JSON)
//	severe_weather   NWS active alerts (GeoJSON, cursor-paginated)
//	internet_outage  network outage annotations (JSON)
//
// Adapters parse provider payloads into the neutral [RawRecord] shape;
// [Normalize] applies the per-type rule selected from a single dispatch table.
//
// # Value scales
//
// PrimaryValue is the source-specific magnitude on a comparable scale:
//
//	earthquake       raw moment magnitude (not rescaled)
//	wildfire         detection confidence, 0-100
//	air_quality      min(AQI/500*100, 100)
//	power_outage     min(log10(customersOut+1)/7*100, 100)
//	severe_weather   Extreme 100 | Severe 75 | Moderate 50 | other 25
//	internet_outage  NATIONWIDE 100 | REGIONAL 75 | LOCAL 50 | other 25
//
// Severity derivation thresholds:
//
//	earthquake       magnitude ≥7 critical | ≥6 high | ≥4 medium | else low
//	wildfire         confidence≥80 AND brightness≥350 critical |
//	                 confidence≥70 OR brightness≥330 high |
//	                 confidence≥50 medium | else low
//	air_quality      AQI ≥300 critical | ≥150 high | ≥100 medium | else low
//	power_outage     customersOut ≥100k critical | ≥50k high | ≥10k medium | else low
//	severe_weather   mirrors the Extreme/Severe/Moderate buckets
//	internet_outage  mirrors the NATIONWIDE/REGIONAL/LOCAL buckets
//
// A field a rule needs but the provider omitted reads as zero and lands in
// the lowest bucket; malformed optional fields never fail a record. Only a
// missing natural key, zero timestamp, or out-of-range coordinates drop it.
//
// # ID generation
//
// Event IDs are deterministic: <dataType>-<hex8 of sha256(source|naturalKey)>.
// Each adapter documents which upstream fields compose its natural key (see
// the adapter packages). A provider that reuses a natural key for distinct
// real-world events collides by construction; that is treated as part of the
// provider's contract rather than guarded against here.
package domain
