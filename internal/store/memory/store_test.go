package memory_test

import (
	"testing"

	"github.com/RezaEskandarii/tickqueue/internal/store"
	"github.com/RezaEskandarii/tickqueue/internal/store/memory"
	"github.com/RezaEskandarii/tickqueue/internal/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.JobStore {
		return memory.New()
	})
}
