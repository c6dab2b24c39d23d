package scope

// Pause snapshots every live series. Until Resume, ingestion that does not
// ignore the pause lands in the snapshot and the live series stay frozen.
func (b *Buffer) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.paused {
		return
	}
	b.snapshot = make([][]Sample, ChannelCount)
	for ch, s := range b.series {
		b.snapshot[ch] = copySamples(s)
	}
	b.paused = true
}

// Resume installs every non-empty snapshot as the live series and discards
// the snapshots.
func (b *Buffer) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.paused {
		return
	}
	for ch, s := range b.snapshot {
		if len(s) == 0 {
			continue
		}
		b.series[ch] = s
		b.dirty[ch] = true
	}
	b.snapshot = nil
	b.paused = false
}

func (b *Buffer) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}
