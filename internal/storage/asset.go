package storage

import (
	"fmt"
	"regexp"

	"github.com/pixil98/go-errors"
)

// AssetVersion is the newest envelope version this build can read.
const AssetVersion = 1

var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9-]*$`)

// ValidatingSpec is the payload of an asset.
type ValidatingSpec interface {
	Validate() error
}

// Asset is the on-disk envelope of a seed record.
type Asset[T ValidatingSpec] struct {
	Version    uint   `json:"version"`
	Identifier string `json:"id"`
	Spec       T      `json:"spec"`
}

func (a *Asset[T]) Id() string {
	return a.Identifier
}

func (a *Asset[T]) Validate() error {
	el := errors.NewErrorList()

	switch {
	case a.Version == 0:
		el.Add(fmt.Errorf("version must be set"))
	case a.Version > AssetVersion:
		el.Add(fmt.Errorf("version %d is newer than supported version %d", a.Version, AssetVersion))
	}

	if a.Identifier == "" {
		el.Add(fmt.Errorf("id must be set"))
	}

	if !identifierPattern.MatchString(a.Identifier) {
		el.Add(fmt.Errorf("id must be alphanumeric"))
	}

	el.Add(a.Spec.Validate())

	return el.Err()
}
