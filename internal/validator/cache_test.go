package validator

import "testing"

func TestMemCacheSetUnknownDoesNotOverwriteConclusive(t *testing.T) {
	t.Parallel()

	c := newMemCache()
	c.Set(Record{Owner: "@alice", Status: Valid, DisplayName: "Alice A."})
	c.Set(Record{Owner: "@alice", Status: Unknown, Reason: "forge returned HTTP 503"})

	got := c.Get("@alice")
	if got.Status != Valid || got.DisplayName != "Alice A." {
		t.Errorf("Get(@alice) = %+v, want the prior Valid record retained", got)
	}
}

func TestMemCacheSetUnknownStoresWhenNothingCached(t *testing.T) {
	t.Parallel()

	c := newMemCache()
	c.Set(Record{Owner: "@bob", Status: Unknown, Reason: "forge returned HTTP 503"})

	got := c.Get("@bob")
	if got.Status != Unknown || got.Reason == "" {
		t.Errorf("Get(@bob) = %+v, want the Unknown record stored", got)
	}
}

func TestMemCacheSetConclusiveOverwritesUnknown(t *testing.T) {
	t.Parallel()

	c := newMemCache()
	c.Set(Record{Owner: "@carol", Status: Unknown})
	c.Set(Record{Owner: "@carol", Status: Invalid, Reason: "not found on forge"})

	got := c.Get("@carol")
	if got.Status != Invalid {
		t.Errorf("Get(@carol) = %+v, want Invalid", got)
	}
}
