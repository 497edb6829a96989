package classdb

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/wippyai/nativebind/errors"
)

// CheckCompatible reports whether an engine of engineVersion can serve
// this description: the major versions must match and the engine minor
// must not be older. A description without a version accepts any engine.
func (db *DB) CheckCompatible(engineVersion string) error {
	if db.Version == "" {
		return nil
	}
	want, got := canonical(db.Version), canonical(engineVersion)
	if !semver.IsValid(want) {
		return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Detail("invalid description version %q", db.Version).Build()
	}
	if !semver.IsValid(got) {
		return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Detail("invalid engine version %q", engineVersion).Build()
	}
	if semver.Major(want) != semver.Major(got) ||
		semver.Compare(semver.MajorMinor(got), semver.MajorMinor(want)) < 0 {
		return errors.VersionMismatch(db.Version, engineVersion)
	}
	return nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
