package protocol

// channelState is the sub-state of ModeChannel. A payload can only be
// accepted once a complete header has been cached in awaitingPayload.
type channelState interface {
	channelState()
}

type awaitingHeader struct{}

type awaitingPayload struct {
	channel   int
	length    int
	timeRaw   string
	period    float64
	valueType ValueType
}

func (awaitingHeader) channelState()  {}
func (awaitingPayload) channelState() {}

// samples spaces values by the header's period, starting at zero.
func (st awaitingPayload) samples(values []float64) []Sample {
	out := make([]Sample, len(values))
	for i, v := range values {
		out[i] = Sample{Time: float64(i) * st.period, Value: v}
	}
	return out
}

func (st awaitingPayload) data(values []float64) ChannelData {
	return ChannelData{
		Channel:   st.channel,
		TimeRaw:   st.timeRaw,
		Period:    st.period,
		ValueType: st.valueType,
		Samples:   st.samples(values),
	}
}
