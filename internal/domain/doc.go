// Package domain computes the zonal-mean meridional mass stream function and
// the Hadley cell boundaries derived from it.
//
// # Methodology
//
// Boundaries follow Stachnik & Schumacher (2011): the cell edge in each
// hemisphere is the latitude where the 700–400 hPa mean stream function
// crosses zero poleward of the subtropical extremum found below 800 hPa.
// For zonally-limited domains the meridional wind is first restricted to its
// irrotational (divergent) component, after Zhang & Wang (2013).
//
// # Grid Conventions
//
// Wind fields are 3-D arrays indexed [level, latitude, longitude] in m/s.
// NaN marks a missing sample and is skipped when averaging over longitude.
//
// Coordinates are either 1-D (one value per grid index) or 2-D, already
// broadcast to [level, latitude]:
//
//	latitude  degrees north, any order
//	pressure  Pa (callers convert hPa by ×100), any order
//
// A 1-D latitude whose length matches the first wind dimension instead of the
// second marks a [latitude, level, longitude] grid. [Canonicalize] resolves
// this once and everything downstream is level-major.
//
// # Stream Function
//
//	ψ(p, φ) = 2π a cos φ / g · Σ v̄ Δp
//
// integrated from the lowest pressure (top of the column) downward, with
// a = 6.371009e6 m and g = 9.80665 m/s². Layer values sit at pressure
// midpoints, so a grid with L levels yields L-1 rows. The latitude grid is
// trimmed by its trailing level row to align with those layers; the latitude
// axis keeps every column.
//
// # Boundaries
//
//	band_mid  4.0e4 ≤ p ≤ 7.0e4 Pa  (profile for zero crossings)
//	band_low  p ≤ 8.0e4 Pa          (extremum search)
//
// North is latitude > 0, south is latitude ≤ 0. A boundary that has no
// qualifying crossing is NaN (see [Found]); that is a valid outcome, not an
// error. Empty bands or hemispheres fail with [ErrDomain].
package domain
