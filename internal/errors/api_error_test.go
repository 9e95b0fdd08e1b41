package errors

import (
	"net/http"
	"testing"
)

func TestStateConflictCarriesCurrentTimer(t *testing.T) {
	err := StateConflict(7)
	if err.Status != http.StatusConflict || err.Code != "state_conflict" {
		t.Fatalf("unexpected error %+v", err)
	}
	details, ok := err.Details.(map[string]interface{})
	if !ok || details["timer"] != 7 {
		t.Fatalf("unexpected details %#v", err.Details)
	}
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := BadRequest("invalid_mode", "bad mode")
	withDetails := base.WithDetails([]string{"normal", "minutes", "seconds"})
	if base.Details != nil {
		t.Fatal("original error was modified")
	}
	if withDetails.Details == nil || withDetails.Code != "invalid_mode" {
		t.Fatalf("unexpected copy %+v", withDetails)
	}
	if got := withDetails.Error(); got != "invalid_mode: bad mode" {
		t.Fatalf("unexpected message %q", got)
	}
}
