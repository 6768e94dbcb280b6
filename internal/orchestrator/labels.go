package orchestrator

// Container and volume labels are the sole persistence mechanism: every
// cross-invocation decision (reuse, orphan detection, anonymous volume
// cleanup) reads them back from the runtime.
const (
	// LabelProject tags a container with its compose project name.
	LabelProject = "com.apple.compose.project"

	// LabelService tags a container with the service it realizes.
	LabelService = "com.apple.compose.service"

	// LabelContainer records the compose-assigned container identifier.
	LabelContainer = "com.apple.compose.container"

	// LabelConfigHash stores the configuration fingerprint used to
	// decide reuse versus recreate.
	LabelConfigHash = "com.apple.container.compose.config-hash"

	// LabelVolumeTarget records the mount target a managed volume was
	// created for (named and anonymous volumes alike).
	LabelVolumeTarget = "com.apple.compose.target"

	// LabelVolumeAnonymous marks volumes generated for bare mount
	// paths; the value is "true" or "false".
	LabelVolumeAnonymous = "com.apple.compose.anonymous"
)
