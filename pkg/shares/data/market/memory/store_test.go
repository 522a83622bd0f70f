package memory

import (
	"testing"

	"github.com/dibs-shares/shares-server/pkg/shares/data/market/tests"
)

func TestMarketMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}
