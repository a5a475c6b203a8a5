// Package formats provides parsers for trajectory data files.
package formats

// Note: NPY arrays are implemented in npy.go
// Note: NPZ archives are implemented in npz.go
// Note: Trajectory loading and metadata are in trajectory.go
