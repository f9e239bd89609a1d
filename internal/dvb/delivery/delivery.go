// Package delivery holds the per-standard tuning adapters. Each adapter
// translates the logical tuning block into the frontend's property sequence:
// CLEAR, then (satellite only) the DiSEqC switch protocol, then the
// system-specific property list, then TUNE.
package delivery

import (
	"time"

	"github.com/satbridge/satbridge/internal/dvb"
)

// System is one delivery-system adapter bound to a frontend.
type System interface {
	CapableOf(ds dvb.DeliverySystem) bool
	Tune(streamID, fd int, ch *dvb.Channel) error
}

// sleep waits out the DiSEqC settle times.
var sleep = time.Sleep

func clearProperties(fd int) error {
	return dvb.SubmitProperties(fd, []dvb.Property{{Cmd: dvb.DTVClear}})
}

func prop(cmd, data uint32) dvb.Property {
	p := dvb.Property{Cmd: cmd}
	p.SetData(data)
	return p
}
