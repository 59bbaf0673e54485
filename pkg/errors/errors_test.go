package errors_test

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	xe "github.com/opst/gallerysync/pkg/errors"
)

type MyErr struct{}

func (MyErr) Error() string {
	return "error type for test"
}

func createError(message string) error {
	return xe.New(message)
}

func TestNewError(t *testing.T) {
	t.Run("it knows location where it is created.", func(t *testing.T) {
		testee := createError("test error")
		errMessage := testee.Error()

		_, thisFile, _, _ := runtime.Caller(0)

		if !strings.Contains(errMessage, "createError") {
			t.Errorf("it does not know function name: %s", errMessage)
		}

		if !strings.Contains(errMessage, thisFile) {
			t.Errorf("it does not know file (%s): %s", thisFile, errMessage)
		}
	})

	t.Run("it supports errors protocol", func(t *testing.T) {
		rootError := MyErr{}

		err := xe.Wrap(fmt.Errorf("%w", fmt.Errorf("%w", rootError)))

		if !errors.Is(err, rootError) {
			t.Error("it does not support unwrapping.")
		}
	})
}

func TestWrap(t *testing.T) {
	t.Run("it passes nil through", func(t *testing.T) {
		if err := xe.Wrap(nil); err != nil {
			t.Errorf("nil should stay nil: %v", err)
		}
		if err := xe.WrapWithNote("note", nil); err != nil {
			t.Errorf("nil should stay nil: %v", err)
		}
	})

	t.Run("it carries a note in its message", func(t *testing.T) {
		err := xe.WrapWithNote("fetching catalog", errors.New("boom"))
		if !strings.Contains(err.Error(), "(fetching catalog)") {
			t.Errorf("note is missing: %s", err)
		}
		if !strings.HasSuffix(err.Error(), "<- boom") {
			t.Errorf("cause is missing: %s", err)
		}
	})
}
