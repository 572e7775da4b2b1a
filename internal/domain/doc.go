// Package domain models the hotspot table produced by the ETL loop and the
// pure transform that builds it.
//
// # Data Source
//
// Hotspot detections come from the NASA FIRMS area API, e.g.
//
//	https://firms.modaps.eosdis.nasa.gov/api/area/csv/{MAP_KEY}/VIIRS_SNPP_NRT/96,5,105,20/1
//
// which returns one CSV row per detection for the bounding box
// (west,south,east,north) over the last N days. The first line is a header.
// VIIRS payloads carry at least:
//
//	latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,
//	instrument,confidence,version,bright_ti5,frp,daynight
//
// MODIS payloads name the brightness column "brightness" instead of
// "bright_ti4", which is why the column set is configured rather than fixed.
//
// # Parsing Conventions
//
// Fields are split on a single delimiter rune with no quote handling. FIRMS
// does not quote fields, and a value containing the delimiter would shift the
// remaining columns of that row.
//
// Columns are resolved by header name. When a header repeats a name the first
// occurrence wins. Header names are compared after trimming surrounding
// whitespace and a leading UTF-8 byte order mark; values are never trimmed.
//
// A data row shorter than the highest column index the [ColumnSpec] needs is
// skipped and reported as a [RowTruncatedError]. With a non-comma source
// delimiter, a row whose projected value contains a comma would widen the
// artifact, so it is skipped and reported as a [RowDelimiterError]. Blank
// lines are ignored.
//
// # Output Artifact
//
// [Serialize] writes the output column names, comma-joined, followed by one
// comma-joined line per record. Every line ends in "\n". Identical input
// always yields identical bytes, so consumers can compare artifacts by hash.
package domain
