package augment

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FailureKind distinguishes why one augmentation attempt produced nothing
type FailureKind int

const (
	// FailureRaised means the transformer returned an error (or panicked).
	FailureRaised FailureKind = iota
	// FailureEmptyBoxes means the transform succeeded but no valid box survived it.
	FailureEmptyBoxes
	// FailureSourceUnusable means the sampled source could not be used: undecodable
	// image, unparsable label, or no box of the requested class.
	FailureSourceUnusable
)

func (k FailureKind) String() string {
	switch k {
	case FailureRaised:
		return "transform raised"
	case FailureEmptyBoxes:
		return "no boxes after transform"
	case FailureSourceUnusable:
		return "source unusable"
	}
	return "unknown"
}

// TransformFailure is the outcome of a failed attempt. It counts against the
// consecutive-failure budget of the class and is never fatal by itself.
type TransformFailure struct {
	Kind FailureKind
	Base string
	Err  error
}

func (f *TransformFailure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Base, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", f.Base, f.Kind, f.Err)
}

func (f *TransformFailure) Unwrap() error { return f.Err }

// ClassAugmentationAborted ends generation for one class. Other classes carry on.
type ClassAugmentationAborted struct {
	ClassID   int
	Generated int
	Requested int
	Reason    string
	// Cause is the last failure or the collision that stopped the class, if any.
	Cause error
}

func (a *ClassAugmentationAborted) Error() string {
	msg := fmt.Sprintf("class %d aborted after %d/%d samples: %s", a.ClassID, a.Generated, a.Requested, a.Reason)
	if a.Cause != nil {
		msg += ": " + a.Cause.Error()
	}
	return msg
}

func (a *ClassAugmentationAborted) Unwrap() error { return a.Cause }

// WriteError is a failure to persist a synthetic sample. It aborts the whole run.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %q: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ErrOutputExists reports a synthetic filename already used by a previous run
var ErrOutputExists = errors.New("synthetic output already exists")

// OverwritePolicy decides what happens when a synthetic filename is already taken
type OverwritePolicy int

const (
	// OverwriteRefuse aborts the class and reports the collision. This is the default.
	OverwriteRefuse OverwritePolicy = iota
	// OverwriteSkip leaves the existing files alone and moves to the next free sequence number.
	OverwriteSkip
	// OverwriteReplace replaces the existing files.
	OverwriteReplace
)

func (p OverwritePolicy) String() string {
	switch p {
	case OverwriteRefuse:
		return "refuse"
	case OverwriteSkip:
		return "skip"
	case OverwriteReplace:
		return "replace"
	}
	return "unknown"
}

// ParseOverwritePolicy accepts "refuse", "skip" or "replace"; empty means refuse
func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "refuse":
		return OverwriteRefuse, nil
	case "skip":
		return OverwriteSkip, nil
	case "replace", "overwrite":
		return OverwriteReplace, nil
	}
	return OverwriteRefuse, errors.Errorf("unknown overwrite policy %q (use refuse, skip or replace)", s)
}
