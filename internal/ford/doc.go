// Package ford implements the CAN protocol layer for Ford platforms.
//
// Three components share the "ford_lincoln_base_pt" and "FORD_CADS" signal
// databases:
//
//   - CarState decodes powertrain (bus 0) and camera (bus 2) traffic into a
//     vehicle.CarState, smoothing speed with a Kalman filter.
//   - CarController turns a vehicle.CarControl into the speed report, gear
//     report and parking-aid angle request frames, gating steering
//     authority behind a ramp of engaged cycles.
//   - RadarInterface tracks radar points (bus 1) with per-slot hysteresis
//     and emits a snapshot once the last score message of a batch arrives.
//
// Interface bundles the three for one model together with its CarParams.
package ford
