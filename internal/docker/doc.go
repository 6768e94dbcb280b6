// Package docker implements the runtime abstractions on top of the
// Docker Engine SDK. It handles socket autodetection across platforms,
// maps SDK types to the runtime package's shapes, and translates SDK
// errors into the module's typed error kinds.
package docker
