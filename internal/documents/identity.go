package documents

import (
	"crypto/sha256"
	"fmt"

	"github.com/paperchat/cli/config"
)

// IDGenerator derives a stable identifier for one text unit.
type IDGenerator interface {
	Identify(unit Unit) string
}

// NewIDGenerator selects an id strategy by name. An unrecognized name is
// a configuration error, surfaced before any embedding work starts.
func NewIDGenerator(strategy string) (IDGenerator, error) {
	switch strategy {
	case config.IDStrategyHash:
		return hashIDGenerator{}, nil
	case config.IDStrategyNative:
		return nativeIDGenerator{}, nil
	}
	return nil, fmt.Errorf("unknown id strategy %q", strategy)
}

// hashIDGenerator derives ids from the chunk text itself, so identical
// text across ingestions collides deterministically. A true hash
// collision between distinct texts would silently overwrite; no
// collision handling is implemented.
type hashIDGenerator struct{}

func (hashIDGenerator) Identify(unit Unit) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(unit.Text)))
}

// nativeIDGenerator uses the identifier assigned during segmentation,
// with no content-derived guarantee.
type nativeIDGenerator struct{}

func (nativeIDGenerator) Identify(unit Unit) string {
	return unit.NativeID
}
