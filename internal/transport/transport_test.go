package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitChunksEvenDivision(t *testing.T) {
	data := make([]byte, 1000)
	chunks := splitChunks(data, 500)
	assert.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
}

func TestSplitChunksShortLastChunk(t *testing.T) {
	data := make([]byte, 2345)
	chunks := splitChunks(data, 500)
	assert.Len(t, chunks, 5)
	assert.Len(t, chunks[4], 345)
}

func TestSplitChunksEmptyInput(t *testing.T) {
	chunks := splitChunks(nil, 500)
	assert.Empty(t, chunks)
}

func TestPacingDelayZeroRateIsUnpaced(t *testing.T) {
	assert.Equal(t, int64(0), int64(pacingDelay(0)))
}

func TestPacingDelayPositiveRate(t *testing.T) {
	d := pacingDelay(100)
	assert.Greater(t, int64(d), int64(0))
}

func TestAllAckedEmptyWindow(t *testing.T) {
	assert.True(t, allAcked(nil))
}

func TestSenderSummaryLossRate(t *testing.T) {
	s := SenderSummary{TotalPacketsSent: 10, TotalRetransmits: 2}
	assert.InDelta(t, 0.2, s.LossRate(), 0.0001)

	empty := SenderSummary{}
	assert.Equal(t, float64(0), empty.LossRate())
}
