package syncmodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-sync/docsync/syncmodel"
)

func TestCompare_OrdersByTimestampFirst(t *testing.T) {
	a := syncmodel.Version{ID: "z", Timestamp: 1}
	b := syncmodel.Version{ID: "a", Timestamp: 2}
	assert.Equal(t, -1, syncmodel.Compare(a, b))
	assert.Equal(t, 1, syncmodel.Compare(b, a))
}

func TestCompare_TieBreaksOnID(t *testing.T) {
	a := syncmodel.Version{ID: "a", Timestamp: 5}
	b := syncmodel.Version{ID: "b", Timestamp: 5}
	assert.Equal(t, -1, syncmodel.Compare(a, b))
	assert.Equal(t, 0, syncmodel.Compare(a, a))
}

func TestLess(t *testing.T) {
	a := syncmodel.Version{ID: "a", Timestamp: 1}
	b := syncmodel.Version{ID: "a", Timestamp: 2}
	assert.True(t, syncmodel.Less(a, b))
	assert.False(t, syncmodel.Less(b, a))
}

func TestNextVersion_AdvancesPastPriorWhenClockMoved(t *testing.T) {
	prior := syncmodel.Version{ID: "doc-1", Timestamp: 100}
	next := syncmodel.NextVersion("doc-1", prior, 150)
	assert.Equal(t, syncmodel.Timestamp(150), next.Timestamp)
}

func TestNextVersion_DefendsAgainstClockStallOrRegression(t *testing.T) {
	prior := syncmodel.Version{ID: "doc-1", Timestamp: 100}
	next := syncmodel.NextVersion("doc-1", prior, 100)
	assert.Equal(t, syncmodel.Timestamp(101), next.Timestamp)

	next = syncmodel.NextVersion("doc-1", prior, 50)
	assert.Equal(t, syncmodel.Timestamp(101), next.Timestamp)
}
