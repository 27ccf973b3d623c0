package hub

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherSendKeepsLatest(t *testing.T) {
	w := newWatcher(nil, nil)

	n := cap(w.dataQ) + 4
	for i := 0; i < n; i++ {
		w.send([]byte(strconv.Itoa(i)))
	}

	var got []string
drain:
	for {
		select {
		case b := <-w.dataQ:
			got = append(got, string(b))
		default:
			break drain
		}
	}

	// Overflow drops from the front of the queue, never the payload being
	// queued, so the last snapshot sent is always the last one delivered.
	require.Len(t, got, cap(w.dataQ))
	assert.Equal(t, strconv.Itoa(n-1), got[len(got)-1])
	assert.Equal(t, strconv.Itoa(n-cap(w.dataQ)), got[0])
}
