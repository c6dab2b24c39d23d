package protocol

import "errors"

var (
	ErrInvalidValueType = errors.New("protocol: invalid value type")
	ErrPayloadLength    = errors.New("protocol: payload length is not a multiple of the value width")
	ErrPayloadTooLarge  = errors.New("protocol: declared payload too large")
	ErrEmptyPayload     = errors.New("protocol: declared payload is empty")
	ErrChannelNumber    = errors.New("protocol: channel number out of range")
	ErrMalformedHeader  = errors.New("protocol: malformed channel header")
	ErrInvalidCOBSCode  = errors.New("protocol: invalid COBS code 0x00")
	ErrTruncatedCOBS    = errors.New("protocol: COBS frame truncated")
)
