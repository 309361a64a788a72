package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsh2dsh/nbkp/config"
)

func indexOf(order []string, s string) int {
	for i, v := range order {
		if v == s {
			return i
		}
	}
	return -1
}

func TestSort_independentSyncsAnyOrder(t *testing.T) {
	syncs := map[string]*config.SyncConfig{
		"a": {Slug: "a", Source: config.SyncEndpoint{Volume: "v1"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "v2"}}},
		"b": {Slug: "b", Source: config.SyncEndpoint{Volume: "v3"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "v4"}}},
	}
	order, err := Sort(syncs)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, order)
}

func TestSort_writerBeforeReader(t *testing.T) {
	syncs := map[string]*config.SyncConfig{
		"producer": {Slug: "producer", Source: config.SyncEndpoint{Volume: "raw"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "staging"}}},
		"consumer": {Slug: "consumer", Source: config.SyncEndpoint{Volume: "staging"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "archive"}}},
	}
	order, err := Sort(syncs)
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Less(t, indexOf(order, "producer"), indexOf(order, "consumer"))
}

func TestSort_cycleDetected(t *testing.T) {
	syncs := map[string]*config.SyncConfig{
		"a": {Slug: "a", Source: config.SyncEndpoint{Volume: "v2"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "v1"}}},
		"b": {Slug: "b", Source: config.SyncEndpoint{Volume: "v1"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "v2"}}},
	}
	_, err := Sort(syncs)
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Cycle)
}

func TestLevels_groupsIndependentSyncsTogether(t *testing.T) {
	syncs := map[string]*config.SyncConfig{
		"a": {Slug: "a", Source: config.SyncEndpoint{Volume: "v1"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "v2"}}},
		"b": {Slug: "b", Source: config.SyncEndpoint{Volume: "v3"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "v4"}}},
	}
	levels, err := Levels(syncs)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, levels[0])
}

func TestLevels_writerInEarlierLevelThanReader(t *testing.T) {
	syncs := map[string]*config.SyncConfig{
		"producer": {Slug: "producer", Source: config.SyncEndpoint{Volume: "raw"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "staging"}}},
		"consumer": {Slug: "consumer", Source: config.SyncEndpoint{Volume: "staging"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "archive"}}},
		"other":    {Slug: "other", Source: config.SyncEndpoint{Volume: "v5"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "v6"}}},
	}
	levels, err := Levels(syncs)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.ElementsMatch(t, []string{"producer", "other"}, levels[0])
	assert.Equal(t, []string{"consumer"}, levels[1])
}

func TestSort_subdirDistinguishesEndpoints(t *testing.T) {
	syncs := map[string]*config.SyncConfig{
		"a": {Slug: "a", Source: config.SyncEndpoint{Volume: "v1"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "v2", Subdir: "photos"}}},
		"b": {Slug: "b", Source: config.SyncEndpoint{Volume: "v2", Subdir: "videos"}, Destination: config.DestinationSyncEndpoint{SyncEndpoint: config.SyncEndpoint{Volume: "v3"}}},
	}
	order, err := Sort(syncs)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, order)
}
