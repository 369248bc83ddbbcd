// Package domain models NOAA climate-station archive data: the GHCN-Daily
// and USHCN v2.5 monthly fixed-width text formats, the station metadata files
// that locate each station, and the long-format measurements produced from them.
//
// # Data Sources
//
// Daily observations come from the GHCN-Daily HCN subset
// (https://www.ncei.noaa.gov/pub/data/ghcn/daily/ghcnd_hcn.tar.gz), one ".dly"
// file per station. Monthly series come from USHCN v2.5
// (https://www.ncei.noaa.gov/pub/data/ushcn/v2.5/), one archive per element
// (tmax, tmin, tavg) and adjustment variant (raw, tob, FLs.52j).
//
// # Daily Line Layout
//
// Byte offsets are zero-based and half-open:
//
//	[0,11)   station id        "USC00011084"
//	[11,15)  year              "1926"
//	[15,17)  month             "01"
//	[17,21)  element           "TMAX", "TMIN", "PRCP" (others are skipped)
//	[21,269) 31 day groups of 8 bytes:
//	           value (5)  measurement flag (1)  quality flag (1)  source flag (1)
//
// Every line reserves 31 day groups regardless of the month length. Slots past
// the last day of the month hold -9999 and are never read. Temperatures are in
// tenths of °C and precipitation in tenths of mm.
//
// # Monthly Line Layout
//
//	[0,11)   station id        "USH00011084"
//	[11]     element digit     1 = TMAX, 2 = TMIN, 3 = TAVG
//	[12,16)  year              "1894"
//	[16,124) 12 month groups of 9 bytes:
//	           value (6)  DM flag (1)  QC flag (1)  DS flag (1)
//
// Values are in hundredths of °C. The adjustment variant is not in the line; it
// is encoded in the member file name, e.g. "USH00297610.tob.tmax" or
// "USH00118916.FLs.52j.tmin". Variants are passed through as published; nothing
// here recomputes an adjustment.
//
// # Missing Values
//
//	-9999 is the sentinel for "no observation". It is filtered before unit
//	conversion, so -999.9 never appears as a value.
//	-999.9 in a station elevation column means the elevation is unknown.
//
// # Station Files
//
// GHCN (ghcnd-stations.txt) and USHCN (ushcn-v2.5-stations.txt) share the id,
// latitude and longitude columns but differ after that; see [GHCNStationLayout]
// and [USHCNStationLayout]. Daily readings join against the GHCN table and
// monthly readings against the USHCN table.
//
// # Coverage
//
// Every measurement passes through [Attach] before it can be assembled into a
// [ColumnBatch]. A station id missing from the table yields a [JoinGap]; the
// row is dropped and counted, so coverage is matched/total as observed rather
// than assumed.
package domain
