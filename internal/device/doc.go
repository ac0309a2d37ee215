// Package device defines the accessory capability contract shared by every
// smart-die implementation.
//
// The package contains:
//   - Accessory, the capability set the rest of the application depends on
//     (observable state, display metadata, roll/power-off/disconnect commands)
//   - Handle, the immutable description of a user-selected physical device
//   - State, the observable {value, busy, connected} snapshot
//   - the Error taxonomy returned by connect-and-initialize operations
//   - UUID normalization helpers used by every radio backend
package device
