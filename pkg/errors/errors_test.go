package errors

import (
	"fmt"
	"testing"
)

type stringerID string

func (s stringerID) String() string { return string(s) }

func TestConstructors_ProduceNonEmptyMessages(t *testing.T) {
	errs := []error{
		NewInvalidInput("path", "must be non-empty"),
		NewNotFound("document", stringerID("abc")),
		NewAlreadyExists("document", stringerID("abc")),
		NewConflict("optimistic update lost the race"),
		NewIoTransient("wal.append", fmt.Errorf("interrupted")),
		NewIoFatal("page.write", fmt.Errorf("disk full")),
		NewCorruption("page 42", "crc mismatch"),
		NewCancelled("insert"),
		NewConfig("cache_capacity", "must be positive"),
	}

	for _, e := range errs {
		if e.Error() == "" {
			t.Errorf("Error() returned empty string for %v", e)
		}
	}
}

func TestIs_MatchesKindAcrossWrap(t *testing.T) {
	err := NewNotFound("document", stringerID("xyz"))
	if !Is(err, NotFound) {
		t.Fatalf("expected NotFound mark, got %v", err)
	}
	if Is(err, Corruption) {
		t.Fatalf("did not expect Corruption mark on %v", err)
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(NewIoTransient("wal.append", fmt.Errorf("eintr"))) {
		t.Fatal("expected IoTransient to be retryable")
	}
	if Retryable(NewIoFatal("page.write", fmt.Errorf("eio"))) {
		t.Fatal("did not expect IoFatal to be retryable")
	}
	if Retryable(NewInvalidInput("path", "empty")) {
		t.Fatal("did not expect InvalidInput to be retryable")
	}
}
