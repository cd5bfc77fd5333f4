// Package slot provides the fixed-width scratch buffer used to coerce
// a host accessor's native value into the width and signedness a
// D-Bus basic type expects, and back again.
//
// The buffer never touches the network: it exists purely so that
// argument marshalling can treat "reinterpret this value as a
// different primitive kind" as a single, auditable operation instead
// of scattering type switches across the marshaller.
package slot

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// ByteOrder is the native byte order of the host process, used when
// reinterpreting a Slot's bytes as a wider or narrower integer.
var ByteOrder binary.ByteOrder = func() binary.ByteOrder {
	if cpu.IsBigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}()
