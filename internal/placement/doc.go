// Package placement implements the pure placement engine: collision
// detection, drop proposals, snapping, trim, split, and the explicit
// push-forward algorithm. Functions here never mutate their inputs and never
// touch stores; callers decide whether to apply a returned proposal or
// surface the conflict.
package placement
