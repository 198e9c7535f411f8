package model

import "errors"

// ErrEmptyThresholds is returned when the threshold table is missing or has
// no usable entries. A sync run must abort on this before touching any
// record.
var ErrEmptyThresholds = errors.New("threshold table is empty")

// ErrInvalidThresholds is returned when the table violates its shape rules:
// TierNone not pinned to zero, non-increasing minimum spends, or a discount
// percentage outside 0..100.
var ErrInvalidThresholds = errors.New("threshold table is invalid")
