package scope

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Channel id layout: analog channels first, then math channels, then
// LogicGroups groups of LogicBits single-bit channels.
const (
	AnalogChannels = 16
	MathChannels   = 3
	LogicGroups    = 3
	LogicBits      = 32

	LogicChannels = LogicGroups * LogicBits
	ChannelCount  = AnalogChannels + MathChannels + LogicChannels
)

// AnalogChannelID maps a 1-based device channel number to a channel id.
func AnalogChannelID(number int) (int, bool) {
	if number < 1 || number > AnalogChannels {
		return 0, false
	}
	return number - 1, true
}

// MathChannelID maps a 1-based math channel number to a channel id.
func MathChannelID(number int) (int, bool) {
	if number < 1 || number > MathChannels {
		return 0, false
	}
	return AnalogChannels + number - 1, true
}

// LogicChannelID returns the id of one bit of a logic group. Both arguments
// are 0-based.
func LogicChannelID(group, bit int) int {
	return AnalogChannels + MathChannels + group*LogicBits + bit
}

func IsLogicChannel(ch int) bool {
	return ch >= AnalogChannels+MathChannels && ch < ChannelCount
}

// LogicGroupBit splits a logic channel id into its group and bit.
func LogicGroupBit(ch int) (group, bit int) {
	rel := ch - AnalogChannels - MathChannels
	return rel / LogicBits, rel % LogicBits
}

// LogicValue is the stored value of one logic bit. Bits are stacked three
// units apart so the level survives as value mod 3.
func LogicValue(bit int, high bool) float64 {
	v := 3 * bit
	if high {
		v++
	}
	return float64(v)
}

// LogicLevel reduces a stored logic value to its level: 0 low, 1 high,
// 2 transition marker.
func LogicLevel(v float64) int {
	level := int(math.Round(v)) % 3
	if level < 0 {
		level += 3
	}
	return level
}

func ChannelName(ch int) string {
	switch {
	case ch < 0 || ch >= ChannelCount:
		return fmt.Sprintf("Invalid %d", ch)
	case IsLogicChannel(ch):
		group, bit := LogicGroupBit(ch)
		return fmt.Sprintf("Logic %d bit %d", group+1, bit+1)
	case ch >= AnalogChannels:
		return fmt.Sprintf("Math %d", ch-AnalogChannels+1)
	default:
		return fmt.Sprintf("Ch %d", ch+1)
	}
}

// ParseChannel resolves a channel reference. A bare number is a channel id;
// "ch3", "math1" and "logic2.5" use the 1-based numbering of ChannelName.
func ParseChannel(ref string) (int, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	number := func(raw string) int {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return -1
		}
		return n
	}

	ch, ok := -1, false
	switch {
	case strings.HasPrefix(ref, "ch"):
		ch, ok = AnalogChannelID(number(ref[len("ch"):]))
	case strings.HasPrefix(ref, "math"):
		ch, ok = MathChannelID(number(ref[len("math"):]))
	case strings.HasPrefix(ref, "logic"):
		groupRaw, bitRaw, found := strings.Cut(ref[len("logic"):], ".")
		group, bit := number(groupRaw)-1, number(bitRaw)-1
		if found && group >= 0 && group < LogicGroups && bit >= 0 && bit < LogicBits {
			ch, ok = LogicChannelID(group, bit), true
		}
	default:
		ch = number(ref)
		ok = ch >= 0 && ch < ChannelCount
	}
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrChannelRange, ref)
	}
	return ch, nil
}
