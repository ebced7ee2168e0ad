package builder

import "errors"

var (
	// ErrArchiveLayout is returned when the extracted archive does not hold
	// exactly one top-level directory
	ErrArchiveLayout = errors.New("archive must contain exactly one top-level directory")

	// ErrTeamMismatch is returned when the top-level directory name differs
	// from the submitted team name
	ErrTeamMismatch = errors.New("top-level directory does not match the team name")

	// ErrEntryPointMissing is returned when the team folder has no start file
	ErrEntryPointMissing = errors.New("entry point file \"start\" not found in team folder")

	// ErrArchiveNotFound is returned when the archive object is absent from
	// the backing store
	ErrArchiveNotFound = errors.New("archive not found in storage")
)
