// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package errs collects the sentinel errors shared by the replica and
// controller binaries for the parts of the taxonomy in spec.md §7 that
// aren't already owned by a more specific package (consensus owns
// InvalidConfiguration/UnknownAlgorithm at construction time, codec owns
// DataNotPresent at the frame layer).
package errs

import "errors"

var (
	// ErrControllerTimeout is recoverable: a controller recv exceeded its
	// deadline; the caller re-checks termination and loops.
	ErrControllerTimeout = errors.New("controller recv timed out")
	// ErrConnectionLost covers a broken peer or controller TCP stream.
	// Recoverable per fault-driver in the controller (mark the replica
	// done, exit the driver); fatal per replica in the runtime (latch
	// RS.done).
	ErrConnectionLost = errors.New("connection lost")
	// ErrThreadCrash names a peer activity exiting before RS.done. The
	// replica supervisor handles that case by logging and latching RS.done,
	// so the other activities observe it on their next timeout cycle; it
	// does not return this error.
	ErrThreadCrash = errors.New("activity crashed before completion")
)
