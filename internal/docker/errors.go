package docker

import (
	cerrdefs "github.com/containerd/errdefs"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// wrapSDKError translates Docker SDK errors into the module's typed
// kinds so the orchestrator can branch on notFound / alreadyExists
// without knowing the runtime implementation.
func wrapSDKError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	kind := model.KindInternal
	switch {
	case cerrdefs.IsNotFound(err):
		kind = model.KindNotFound
	case cerrdefs.IsConflict(err), cerrdefs.IsAlreadyExists(err):
		kind = model.KindAlreadyExists
	case cerrdefs.IsInvalidArgument(err):
		kind = model.KindInvalidArgument
	case cerrdefs.IsDeadlineExceeded(err):
		kind = model.KindTimeout
	}
	return model.WrapError(kind, err, format, args...)
}
