// Package sim implements a simulated hardware library. It lets the bridge run
// without physical boards attached and is the default driver of the serve
// command.
//
// Boards complete their handshake after a configurable delay. Board ids listed
// in Config.FailBoards emit an error event instead, which makes the failure
// and retry path of the bridge observable from a client.
//
// Each board has a fixed number of pins. A pin can be claimed by exactly one
// component; constructing a second component on a claimed pin fails.
//
// Classes (see NewCatalog):
//
//	Led(pin)           on, off, toggle, blink([ms]), stop, brightness(value), isOn
//	Servo(pin)         to(deg), center, min, max, sweep, stop, position
//	Motor(pin)         start([speed]), stop, forward(speed), reverse(speed), speed, isRunning
//	Sensor(pin)        value, read, raw, scale(low, high)
package sim
