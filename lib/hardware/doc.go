// Package hardware defines the capability surface the bridge consumes from a
// hardware-abstraction library. The bridge never talks to boards directly: it
// asks a Driver to open a board, waits for the handle to report ready or error,
// and constructs components through an explicit Catalog of known classes.
//
// The package focuses on:
//   - A Driver / BoardHandle contract with exactly-once handshake events
//   - A Catalog mapping permitted class names to typed factory functions
//   - Explicit per-class operation tables (MethodSet) instead of reflection
//   - Helpers to decode positional JSON arguments (ArgInt, ArgFloat, ...)
//
// Key Components:
//
//   - Driver: Opens a BoardHandle for an opaque board id. The handle emits a
//     single Event (EventReady or EventError) on its Events channel.
//
//   - Catalog: The allow-list of component classes. Lookup of a name that is
//     not registered fails with ErrUnknownComponentClass, so caller input can
//     never reach an arbitrary constructor.
//
//   - Component: A constructed accessory. Methods returns the complete set of
//     operations a client may invoke on it by name.
//
// Implementations:
//
//   - sim: A simulated library with Led, Servo, Motor and Sensor classes.
//   - testing: A stub driver for tests that counts handshakes and constructions.
package hardware
