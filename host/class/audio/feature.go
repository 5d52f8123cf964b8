package audio

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ardnew/softuac/pkg"
)

// FeatureUnit applies per-channel controls such as mute, volume and AGC.
// Only one logical knob per control is modeled: a control lives either on
// the master channel or uniformly on every logical channel.
type FeatureUnit struct {
	id          uint8
	Source      uint8
	ControlSize uint8

	// Controls holds the control bitmap of the master channel at index 0
	// followed by one bitmap per logical channel.
	Controls []uint32

	ctl *controller

	mu       sync.Mutex
	probed   bool
	probeErr error
	bits     uint32 // controls present on the modeled knob
	master   uint32 // controls addressed on channel 0
	min      int16
	max      int16
	res      int16
	gain     int16 // last real gain, in ticks
	muted    bool
	agc      bool
}

func (u *FeatureUnit) ID() uint8          { return u.id }
func (*FeatureUnit) Kind() Kind           { return KindFeature }
func (*FeatureUnit) SourceCount() int     { return 1 }
func (u *FeatureUnit) SourceID(int) uint8 { return u.Source }
func (*FeatureUnit) node()                {}
func (*FeatureUnit) recordSize() int      { return 7 }

func (u *FeatureUnit) decode(b []byte) bool {
	u.id = b[3]
	u.Source = b[4]
	u.ControlSize = b[5]

	size := int(u.ControlSize)
	if size == 0 || (len(b)-7)%size != 0 {
		return false
	}
	count := (len(b) - 7) / size
	if count < 1 {
		return false
	}
	u.Controls = make([]uint32, count)
	for ch := range u.Controls {
		var bits uint32
		for j := 0; j < size && j < 4; j++ {
			bits |= uint32(b[6+ch*size+j]) << (8 * j)
		}
		u.Controls[ch] = bits
	}
	return true
}

// Channels returns the number of logical channels.
func (u *FeatureUnit) Channels() int {
	return len(u.Controls) - 1
}

// Probe models the unit's controls and reads their ranges and current
// values. It runs once; later calls return the cached result.
func (u *FeatureUnit) Probe(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.probed {
		u.probeErr = u.probe(ctx)
		u.probed = true
		if u.probeErr != nil {
			pkg.LogWarn(pkg.ComponentGraph, "feature unit rejected",
				"unit", u.id,
				"error", u.probeErr)
		}
	}
	return u.probeErr
}

func (u *FeatureUnit) probe(ctx context.Context) error {
	master := u.Controls[0]
	var union, inter uint32
	for ch, bits := range u.Controls[1:] {
		union |= bits
		if ch == 0 {
			inter = bits
		} else {
			inter &= bits
		}
	}
	if master&union != 0 {
		return fmt.Errorf("%w: unit %d: controls %#x on master and channels",
			ErrProbeFailed, u.id, master&union)
	}
	if union != inter {
		return fmt.Errorf("%w: unit %d: channel controls diverge", ErrProbeFailed, u.id)
	}
	u.bits = master | union
	u.master = master
	if u.ctl == nil && u.bits&(controlBitVolume|controlBitMute|controlBitAGC) != 0 {
		return fmt.Errorf("%w: unit %d: no control interface", ErrProbeFailed, u.id)
	}

	if u.bits&controlBitVolume != 0 {
		if err := u.probeVolume(ctx); err != nil {
			return err
		}
	}
	if u.bits&controlBitMute != 0 {
		v, err := u.probeSwitch(ctx, selectorMute, controlBitMute)
		if err != nil {
			return err
		}
		u.muted = v
	}
	if u.bits&controlBitAGC != 0 {
		v, err := u.probeSwitch(ctx, selectorAGC, controlBitAGC)
		if err != nil {
			return err
		}
		u.agc = v
	}
	return nil
}

// channels returns the channels addressed for a control.
func (u *FeatureUnit) channels(bit uint32) []uint8 {
	if u.master&bit != 0 {
		return []uint8{0}
	}
	out := make([]uint8, u.Channels())
	for i := range out {
		out[i] = uint8(i + 1)
	}
	return out
}

func (u *FeatureUnit) probeVolume(ctx context.Context) error {
	chs := u.channels(controlBitVolume)
	for i, ch := range chs {
		lo, err := u.ctl.getUnit(ctx, requestGetMin, u.id, selectorVolume, ch, 2)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProbeFailed, err)
		}
		hi, err := u.ctl.getUnit(ctx, requestGetMax, u.id, selectorVolume, ch, 2)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProbeFailed, err)
		}
		res, err := u.ctl.getUnit(ctx, requestGetRes, u.id, selectorVolume, ch, 2)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrProbeFailed, err)
		}
		if lo > hi || res <= 0 {
			return fmt.Errorf("%w: unit %d: invalid volume range [%d,%d] step %d",
				ErrProbeFailed, u.id, lo, hi, res)
		}
		if i == 0 {
			u.min, u.max, u.res = lo, hi, res
		} else if lo != u.min || hi != u.max || res != u.res {
			return fmt.Errorf("%w: unit %d: volume range of channel %d diverges",
				ErrProbeFailed, u.id, ch)
		}
	}

	cur, err := u.ctl.getUnit(ctx, requestGetCur, u.id, selectorVolume, chs[0], 2)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	u.gain = cur
	if chs[0] != 0 {
		for _, ch := range chs {
			if err := u.ctl.setUnit(ctx, u.id, selectorVolume, ch, cur, 2); err != nil {
				return fmt.Errorf("%w: %w", ErrProbeFailed, err)
			}
		}
	}
	return nil
}

func (u *FeatureUnit) probeSwitch(ctx context.Context, selector uint8, bit uint32) (bool, error) {
	chs := u.channels(bit)
	cur, err := u.ctl.getUnit(ctx, requestGetCur, u.id, selector, chs[0], 1)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	if chs[0] != 0 {
		for _, ch := range chs {
			if err := u.ctl.setUnit(ctx, u.id, selector, ch, cur, 1); err != nil {
				return false, fmt.Errorf("%w: %w", ErrProbeFailed, err)
			}
		}
	}
	return cur != 0, nil
}

// HasGain reports whether the unit has a volume control.
func (u *FeatureUnit) HasGain() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.probeErr == nil && u.bits&controlBitVolume != 0
}

// HasMute reports whether the unit has an explicit mute control.
func (u *FeatureUnit) HasMute() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.probeErr == nil && u.bits&controlBitMute != 0
}

// HasAGC reports whether the unit has an automatic gain control.
func (u *FeatureUnit) HasAGC() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.probeErr == nil && u.bits&controlBitAGC != 0
}

// GainRange returns the volume range and step in decibels.
func (u *FeatureUnit) GainRange() (lo, hi, step float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return ticksToDB(u.min), ticksToDB(u.max), ticksToDB(u.res)
}

// Gain returns the stored gain in decibels. It is the last real gain,
// independent of mute.
func (u *FeatureUnit) Gain() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return ticksToDB(u.gain)
}

// Muted reports whether the unit is muted.
func (u *FeatureUnit) Muted() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.muted
}

// AGC reports whether automatic gain control is enabled.
func (u *FeatureUnit) AGC() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.agc
}

// quantize converts db to ticks on the unit's grid: rounded to the nearest
// multiple of the step from the minimum, then clamped into range.
func (u *FeatureUnit) quantize(db float64) int16 {
	ticks := math.Round(db * ticksPerDB)
	lo, hi, res := float64(u.min), float64(u.max), float64(u.res)
	q := lo + math.Round((ticks-lo)/res)*res
	if q > hi {
		q = lo + math.Floor((hi-lo)/res)*res
	}
	if q < lo {
		q = lo
	}
	return int16(q)
}

// SetGain stores the nearest representable gain and transmits it, unless
// mute is emulated and currently engaged.
func (u *FeatureUnit) SetGain(ctx context.Context, db float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.probeErr != nil || u.bits&controlBitVolume == 0 {
		return fmt.Errorf("unit %d gain: %w", u.id, pkg.ErrNotSupported)
	}
	if math.IsNaN(db) {
		return fmt.Errorf("unit %d gain: %w", u.id, ErrGainOutOfRange)
	}

	ticks := u.quantize(db)
	u.gain = ticks
	if u.muted && u.bits&controlBitMute == 0 {
		return nil
	}
	return u.writeVolume(ctx, ticks)
}

// SetMute mutes or unmutes the unit. Without an explicit mute control the
// most negative gain is transmitted while muted and the stored gain is
// restored on unmute.
func (u *FeatureUnit) SetMute(ctx context.Context, mute bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.setMute(ctx, mute)
}

func (u *FeatureUnit) setMute(ctx context.Context, mute bool) error {
	if u.probeErr != nil {
		return fmt.Errorf("unit %d mute: %w", u.id, pkg.ErrNotSupported)
	}
	switch {
	case u.bits&controlBitMute != 0:
		var v int16
		if mute {
			v = 1
		}
		for _, ch := range u.channels(controlBitMute) {
			if err := u.ctl.setUnit(ctx, u.id, selectorMute, ch, v, 1); err != nil {
				return err
			}
		}
	case u.bits&controlBitVolume != 0:
		v := u.gain
		if mute {
			v = muteTicks
		}
		if err := u.writeVolume(ctx, v); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unit %d mute: %w", u.id, pkg.ErrNotSupported)
	}
	u.muted = mute
	return nil
}

// SetAGC enables or disables automatic gain control.
func (u *FeatureUnit) SetAGC(ctx context.Context, enable bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.probeErr != nil || u.bits&controlBitAGC == 0 {
		return fmt.Errorf("unit %d agc: %w", u.id, pkg.ErrNotSupported)
	}
	var v int16
	if enable {
		v = 1
	}
	for _, ch := range u.channels(controlBitAGC) {
		if err := u.ctl.setUnit(ctx, u.id, selectorAGC, ch, v, 1); err != nil {
			return err
		}
	}
	u.agc = enable
	return nil
}

// forceMute mutes a unit left outside every path. Units whose controls
// cannot be modeled are left alone.
func (u *FeatureUnit) forceMute(ctx context.Context) error {
	if err := u.Probe(ctx); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.bits&(controlBitMute|controlBitVolume) == 0 {
		return nil
	}
	return u.setMute(ctx, true)
}

func (u *FeatureUnit) writeVolume(ctx context.Context, ticks int16) error {
	for _, ch := range u.channels(controlBitVolume) {
		if err := u.ctl.setUnit(ctx, u.id, selectorVolume, ch, ticks, 2); err != nil {
			return err
		}
	}
	return nil
}

func ticksToDB(t int16) float64 {
	return float64(t) / ticksPerDB
}
