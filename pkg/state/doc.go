// Package state persists the trust store: the durable record of devices this
// instance has paired with.
//
// The state file is a JSON document shared with other parts of the desktop
// integration (session capture, file sync). This package owns only the
// paired_devices map; every other top-level key is carried through
// read-modify-write cycles untouched.
//
// All mutating operations are full load-modify-save cycles against the single
// state file; the file is the source of truth. Operations are serialized per
// process only - concurrent writers from other processes are not coordinated
// and may corrupt state.
package state
