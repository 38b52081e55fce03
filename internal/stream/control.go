package stream

import (
	"github.com/quakeview/server/internal/dispatcher"
)

// Control commands a viewer may send as text frames.
const (
	CommandResync = "resync"
)

// RegisterControls installs the viewer control commands on d.
func RegisterControls(d *dispatcher.Dispatcher, hub *Hub) {
	d.Register(CommandResync, func(e dispatcher.Event) (any, error) {
		hub.Resync(e.Recipient)
		return nil, nil
	}, dispatcher.Logged())
}
