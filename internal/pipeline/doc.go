// Package pipeline converts UFS replay model output into analysis-ready
// Zarr archives.
//
// # Data Source
//
// The UFS replay experiments re-run the Unified Forecast System while nudging
// it toward a reference reanalysis, producing a physically consistent record
// of the atmosphere. Output is organized by data assimilation (DA) cycle:
// each cycle directory holds one NetCDF file per file family and forecast
// lead hour. The public 1-degree archive lives at
// s3://noaa-ufs-gefsv13replay-pds.
//
// # File Families
//
// Two prefixes cover the FV3 atmosphere output:
//
//	bfg_  physics fields on the model grid (surface fluxes, precipitation,
//	      surface pressure)
//	sfg_  dynamics fields on model levels (temperature, winds, humidity,
//	      ozone) plus a duplicated surface pressure copy that is dropped
//	      during reads
//
// # Time Conventions
//
// Model timestamps use the CF "julian" calendar, which keeps the
// every-four-years leap rule with no century exception. Calendar-aware
// values live in the cftime coordinate; the time coordinate holds the same
// field values reinterpreted as standard timestamps, which is what archive
// consumers index by. ftime is the forecast lead time: the offset of each
// step from its cycle's initialization.
//
// # Archive Layout
//
// One run writes up to two Zarr stores:
//
//	<path_out>/forecast/<name>.zarr      forecast fields, appended per cycle
//	<path_out>/coordinates/<name>.zarr   static coordinates, written once
//
// Static coordinates (grids, level interfaces) are identical across cycles,
// so the coordinate store is gated on an existence probe and skipped once
// present.
package pipeline
