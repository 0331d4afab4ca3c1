package errs

import (
	"errors"
	"testing"
)

func TestParseErrorUnwrapAndAs(t *testing.T) {
	cause := errors.New("bad yaml")
	err := error(&ParseError{Path: "STAGE-001.md", Cause: cause})

	if err.Error() != "parse STAGE-001.md: bad yaml" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through Unwrap to the cause")
	}

	var pe *ParseError
	if !errors.As(err, &pe) || pe.Path != "STAGE-001.md" {
		t.Errorf("errors.As failed to recover *ParseError: %+v", pe)
	}
}

func TestLockErrorHasNoCauseButFormatsPath(t *testing.T) {
	err := &LockError{Path: "STAGE-002.md"}
	if err.Error() != "lock held: STAGE-002.md" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWorktreeErrorWrapsCause(t *testing.T) {
	cause := errors.New("branch exists")
	err := error(&WorktreeError{Branch: "stage-002", Cause: cause})
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through to the wrapped cause")
	}
}

func TestEveryTaxonomyMemberImplementsError(t *testing.T) {
	var errsList = []error{
		&ParseError{},
		&ValidationError{},
		&StoreError{},
		&LockError{},
		&WorktreeError{},
		&SessionError{},
		&ResolverError{},
		&ExitGateError{},
		&ShutdownError{},
	}
	for _, e := range errsList {
		if e.Error() == "" {
			t.Errorf("%T.Error() returned empty string", e)
		}
	}
}
