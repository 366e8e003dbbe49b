// Package whirl implements the rotary Leslie-style speaker cabinet: two inertial rotors (horn, drum) generating angular
// Doppler FM through per-angle displacement tables, a five-component
// per-angle horn impulse response, multi-reflection mixing into four
// delay buffers, IIR tone shaping, and a stereo mic matrix.
package whirl

import "math"

// displcSize is the angular resolution of the displacement and
// impulse-response tables.
const (
	displcSize = 128
	displcMask = displcSize - 1
)

// bufSize is the length of the four rotor delay buffers and the upper
// bound on the caller's block size.
const (
	bufSize = 8192
	bufMask = bufSize - 1
)

// numPartials is the number of reflections synthesized per rotor: a
// primary pair, a first-reflection pair and a secondary pair.
const numPartials = 6

// histLen is the input-history depth for the five-column horn IR.
const (
	histLen  = 4
	histMask = histLen - 1
)

// denormalOffset is added to every input sample to keep the IIR
// feedback paths out of denormal territory.
const denormalOffset = 1e-14

// Speed selects a rotor-pair speed preset.
type Speed int

const (
	Slow Speed = iota
	Stop
	Fast
)

// revOption is one entry of the 9-way speed table: a target angular
// increment (cycles/sample) per rotor.
type revOption struct {
	horn float64
	drum float64
}

// rotor models one spinning reflector's inertia, brake and angle.
type rotor struct {
	angle  float64 // always in [0,1)
	incr   float64 // current cycles/sample
	target float64
	acDc   int // -1 decelerating, 0 steady, +1 accelerating

	accel float64 // time constant, seconds
	decel float64

	brakePos float64 // 0 disables; otherwise the angle sought at stop

	hardstopRPM  float64 // speed below which the brake steering takes over
	moveLimitRPM float64 // stopped-brake reposition speed limit
}

// brakeTarget maps the user-facing brake position to the internal
// angle convention (horn: 1.25 - pos, drum: pos + 0.75, both mod 1).
func (r *rotor) brakeTarget(horn bool) float64 {
	if horn {
		return math.Mod(1.25-r.brakePos, 1.0)
	}
	return math.Mod(r.brakePos+0.75, 1.0)
}

// advanceSpeed runs the per-block rotor state machine: exponential
// inertia toward the target increment, the brake-to-position flywheel
// when coming to a halt, and a snap once within the dead zone. Returns
// true when the stopped-brake repositioning moved the rotor (its incr
// must be cleared after the block).
func (r *rotor) advanceSpeed(sampleRate float64, blockSamples int, horn bool) bool {
	if r.acDc != 0 {
		flywheel := false
		hardstop := r.hardstopRPM / (60.0 * sampleRate)

		if r.brakePos > 0 && r.target == 0 && r.incr > 0 && r.incr < hardstop {
			targetPos := r.brakeTarget(horn)
			if math.Abs(r.angle-targetPos) < 2.0/displcSize {
				r.angle = targetPos
				r.incr = 0
			} else {
				// keep going: at most the speed needed to reach the
				// brake position this block, at least 3 RPM
				minspeed := 3.0 / (60.0 * sampleRate)
				diffinc := math.Mod(1.0+targetPos-r.angle, 1.0) / float64(blockSamples)
				if r.incr > diffinc {
					r.incr = diffinc
				} else if r.incr < minspeed {
					r.incr = minspeed
				}
				flywheel = true
			}
		}

		if !flywheel {
			tau := r.decel
			if r.acDc > 0 {
				tau = r.accel
			}
			l := math.Exp(-1.0 / (sampleRate / float64(blockSamples) * tau))
			r.incr += (1 - l) * (r.target - r.incr)
		}

		if math.Abs(r.target-r.incr) < 0.05/(60.0*sampleRate) {
			r.acDc = 0
			r.incr = r.target
		}
	}

	// brake position changed while the motors were already stopped:
	// move to the requested position at a bounded speed
	if r.brakePos > 0 && r.acDc == 0 && r.incr == 0 {
		targetPos := r.brakeTarget(horn)
		if r.angle != targetPos {
			if math.Abs(r.angle-targetPos) < 2.0/displcSize {
				r.angle = targetPos
			} else {
				limit := r.moveLimitRPM / (60.0 * sampleRate)
				r.incr = math.Mod(1.0+targetPos-r.angle, 1.0) / float64(blockSamples)
				if r.incr > limit {
					r.incr = limit
				}
			}
			return true
		}
	}
	return false
}

// FilterParams describes one tunable crossover biquad.
type FilterParams struct {
	Type FilterType
	Hz   float64
	Q    float64
	Gain float64
}

// Default crossover settings: horn A lowpass, horn B lowshelf, drum
// highshelf.
var (
	DefaultHornA = FilterParams{Type: Lowpass, Hz: 4500, Q: 2.7456, Gain: -30.0}
	DefaultHornB = FilterParams{Type: Lowshelf, Hz: 300.0, Q: 1.0, Gain: -30.0}
	DefaultDrum  = FilterParams{Type: Highshelf, Hz: 811.9695, Q: 1.6016, Gain: -38.9291}
)

// Config parameterizes cabinet construction.
type Config struct {
	SampleRate float64

	HornSlowRPM, HornFastRPM   float64
	DrumSlowRPM, DrumFastRPM   float64
	HornAccelSec, HornDecelSec float64
	DrumAccelSec, DrumDecelSec float64
	HornRadiusCm, DrumRadiusCm float64
	HornXOffsetCm              float64
	HornZOffsetCm              float64
	MicDistanceCm              float64
	AirSpeedMps                float64

	HornLevel float64
	LeakLevel float64

	HornWidth float64 // [-1,1]
	DrumWidth float64

	HornA, HornB, Drum FilterParams
}

// DefaultConfig matches the stock cabinet.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:    sampleRate,
		HornSlowRPM:   60.0 * 0.672,
		HornFastRPM:   60.0 * 7.056,
		DrumSlowRPM:   60.0 * 0.600,
		DrumFastRPM:   60.0 * 5.955,
		HornAccelSec:  0.161,
		HornDecelSec:  0.321,
		DrumAccelSec:  4.127,
		DrumDecelSec:  1.371,
		HornRadiusCm:  19.2,
		DrumRadiusCm:  22.0,
		MicDistanceCm: 42.0,
		AirSpeedMps:   340.0,
		HornLevel:     0.7,
		LeakLevel:     0.15,
		HornA:         DefaultHornA,
		HornB:         DefaultHornB,
		Drum:          DefaultDrum,
	}
}

// Cabinet is the full rotary speaker. It is owned by the audio thread;
// every setter is safe at block boundaries only.
type Cabinet struct {
	sampleRate float64

	horn rotor
	drum rotor

	hornSlowRPM, hornFastRPM float64
	drumSlowRPM, drumFastRPM float64

	revOptions [9]revOption
	revSelects [3]int // bound entry per Speed
	revSelect  Speed

	// per-angle displacement (in samples) and horn impulse response
	hnFwdDispl, hnBwdDispl [displcSize]float32
	drFwdDispl, drBwdDispl [displcSize]float32
	bfw, bbw               [displcSize][5]float32

	hornSpacing [numPartials]float64 // samples, includes rotor radius
	drumSpacing [numPartials]float64
	hornPhase   [numPartials]int
	drumPhase   [numPartials]int

	hlBuf, hrBuf [bufSize]float32
	dlBuf, drBuf [bufSize]float32
	outpos       int

	adx0, adx1, adx2 [histLen]float32
	adi0, adi1, adi2 int

	z [4]float32 // FILTER_C states between reflection pairs

	hornFilterA biquad
	hornFilterB biquad
	drumFilterL biquad
	drumFilterR biquad
	drumParams  FilterParams

	hornLevel float64
	leakLevel float64
	leakage   float64
	micAngle  float64

	// stereo mic matrix
	hll, hlr, hrl, hrr float64
	dll, dlr, drl, drr float64

	bypass bool
}

// New builds a Cabinet from cfg. All tables and buffers are sized here;
// nothing allocates after construction.
func New(cfg Config) *Cabinet {
	c := &Cabinet{
		sampleRate:  cfg.SampleRate,
		hornSlowRPM: cfg.HornSlowRPM,
		hornFastRPM: cfg.HornFastRPM,
		drumSlowRPM: cfg.DrumSlowRPM,
		drumFastRPM: cfg.DrumFastRPM,
		hornLevel:   cfg.HornLevel,
		leakLevel:   cfg.LeakLevel,
		drumParams:  cfg.Drum,
	}

	c.horn = rotor{accel: cfg.HornAccelSec, decel: cfg.HornDecelSec, hardstopRPM: 10, moveLimitRPM: 60}
	c.drum = rotor{accel: cfg.DrumAccelSec, decel: cfg.DrumDecelSec, hardstopRPM: 8, moveLimitRPM: 100}

	c.leakage = c.leakLevel * c.hornLevel

	c.hornFilterA.set(cfg.HornA.Type, cfg.HornA.Hz, cfg.HornA.Q, cfg.HornA.Gain, cfg.SampleRate)
	c.hornFilterB.set(cfg.HornB.Type, cfg.HornB.Hz, cfg.HornB.Q, cfg.HornB.Gain, cfg.SampleRate)
	c.drumFilterL.set(cfg.Drum.Type, cfg.Drum.Hz, cfg.Drum.Q, cfg.Drum.Gain, cfg.SampleRate)
	c.drumFilterR.set(cfg.Drum.Type, cfg.Drum.Hz, cfg.Drum.Q, cfg.Drum.Gain, cfg.SampleRate)

	c.computeOffsets(cfg)
	c.buildIRTables()
	c.computeRotationSpeeds()
	c.SetWidths(cfg.HornWidth, cfg.DrumWidth)
	return c
}

// computeOffsets fills the four per-angle displacement tables (in
// samples of acoustic travel) and the scaled reflection spacings.
func (c *Cabinet) computeOffsets(cfg Config) {
	// spacing between reflections in samples at the reference 22.05k
	// rate; the first cannot be zero since the Doppler swing must not
	// cross the reader
	hornSpacing := [numPartials]float64{12, 18, 53, 50, 106, 116}
	drumSpacing := [numPartials]float64{36, 39, 79, 86, 123, 116}

	hornRadiusSamples := cfg.HornRadiusCm * c.sampleRate / 100.0 / cfg.AirSpeedMps
	drumRadiusSamples := cfg.DrumRadiusCm * c.sampleRate / 100.0 / cfg.AirSpeedMps
	micDistSamples := cfg.MicDistanceCm * c.sampleRate / 100.0 / cfg.AirSpeedMps
	micXOffsetSamples := cfg.HornXOffsetCm * c.sampleRate / 100.0 / cfg.AirSpeedMps
	micZOffsetSamples := cfg.HornZOffsetCm * c.sampleRate / 100.0 / cfg.AirSpeedMps

	for i := 0; i < displcSize; i++ {
		v := 2 * math.Pi * float64(i) / displcSize
		a := micDistSamples - hornRadiusSamples*math.Cos(v)
		b := micZOffsetSamples + hornRadiusSamples*math.Sin(v)
		dist := math.Sqrt(a*a + b*b)
		c.hnFwdDispl[i] = float32(dist + micXOffsetSamples)
		c.hnBwdDispl[displcSize-(i+1)] = float32(dist - micXOffsetSamples)

		a = micDistSamples - drumRadiusSamples*math.Cos(v)
		b = drumRadiusSamples * math.Sin(v)
		c.drFwdDispl[i] = float32(math.Sqrt(a*a + b*b))
		c.drBwdDispl[displcSize-(i+1)] = c.drFwdDispl[i]
	}

	phases := [numPartials]int{
		0,
		displcSize / 2,
		displcSize * 2 / 6,
		displcSize * 5 / 6,
		displcSize * 1 / 6,
		displcSize * 4 / 6,
	}
	c.hornPhase = phases
	c.drumPhase = phases

	for i := 0; i < numPartials; i++ {
		c.hornSpacing[i] = hornSpacing[i]*c.sampleRate/22050.0 + hornRadiusSamples + 1.0
		c.drumSpacing[i] = drumSpacing[i]*c.sampleRate/22050.0 + drumRadiusSamples + 1.0
	}
}

// irPoint is one hand-picked control point of a principal IR component:
// an angle in degrees (-180..180) and a level.
type irPoint struct {
	deg float64
	lvl float64
}

// hornIRComponents are the five principal components of the horn's
// angle-dependent impulse response, after Smith/Serafin/Abel/Berners,
// "Doppler simulation and the Leslie" (DAFx-02), fig. 8.
var hornIRComponents = [5][]irPoint{
	{
		{-180, 1.052}, {-166.4, .881}, {-150.5, .881}, {-135.3, .881},
		{-122.4, .792}, {-106.5, .792}, {-91.2, .836}, {-75.8, .881},
		{-59.4, .851}, {-44.7, .941}, {-30.0, 1.298}, {-14.7, 2.119},
		{0.0, 2.820}, {15.6, 2.313}, {30.0, 1.492}, {44.7, .926},
		{60.0, .836}, {74.7, .866}, {90.6, .792}, {100.0, .777},
		{105.0, .777}, {120.0, .836}, {135.3, .836}, {150.0, .881},
		{164.5, .874}, {180.0, 1.052},
	},
	{
		{-180, -0.07}, {-150.0, 0.10}, {-135.0, -0.10}, {-122.2, 0.16},
		{-105.0, 0.15}, {-91.2, 0.37}, {-75.3, 0.32}, {-60.1, 0.39},
		{-44.5, 0.70}, {-30.0, 0.53}, {-12.0, -0.40}, {0.0, -0.81},
		{2.7, -0.77}, {15.0, -0.52}, {33.1, 0.38}, {43.7, 0.68},
		{57.7, 0.49}, {74.1, 0.19}, {89.4, 0.33}, {105.0, 0.03},
		{120.0, 0.12}, {134.0, -0.13}, {153.3, 0.08}, {180.0, -0.07},
	},
	{
		{-180, 0.40}, {-165.0, 0.20}, {-150.0, 0.48}, {-135.0, 0.27},
		{-121.2, 0.22}, {-89.2, 0.30}, {-69.2, 0.22}, {-58.0, 0.11},
		{-40.2, -0.43}, {-29.0, -0.53}, {-15.6, -0.43}, {0.0, 0.00},
		{14.3, -0.44}, {30.3, -0.60}, {60.3, 0.11}, {74.9, 0.32},
		{91.5, 0.23}, {104.9, 0.32}, {121.7, 0.19}, {135.0, 0.27},
		{150.0, 0.45}, {165.0, 0.20}, {180.0, 0.40},
	},
	{
		{-180, -0.08}, {-165.2, -0.19}, {-150.0, 0.00}, {-133.9, -0.20},
		{-120.0, -0.15}, {-106.0, 0.09}, {-89.3, -0.15}, {-76.3, 0.00},
		{-60.3, 0.29}, {-44.6, -0.02}, {-15.6, -0.22}, {0.0, 0.24},
		{14.5, 0.11}, {30.1, -0.10}, {44.6, 0.17}, {60.4, 0.22},
		{75.9, 0.16}, {90.4, -0.05}, {104.9, 0.07}, {122.8, -0.07},
		{136.2, -0.07}, {150.0, 0.08}, {165.0, -0.19}, {180.0, -0.08},
	},
	{
		{-180, 0.13}, {-165.2, 0.00}, {-150.0, 0.17}, {-135.2, -0.20},
		{-120.5, 0.00}, {-105.0, 0.00}, {-90.0, 0.04}, {-75.0, -0.09},
		{-60.3, -0.14}, {-45.0, 0.16}, {-15.6, 0.00}, {0.0, 0.22},
		{15.6, -0.21}, {30.1, -0.09}, {45.0, 0.10}, {60.3, -0.07},
		{74.8, -0.15}, {90.4, -0.03}, {104.9, -0.14}, {120.5, 0.00},
		{135.2, -0.26}, {150.0, 0.16}, {165.0, -0.02}, {180.0, 0.13},
	},
}

// buildIRTables draws each component's control polyline into the
// forward table, normalizes the whole matrix so no angle's absolute
// row sum exceeds unity, and mirrors it into the backward
// table.
func (c *Cabinet) buildIRTables() {
	degToIndex := func(deg float64) int {
		if deg < 0 {
			deg += 360
		}
		return int(deg * displcSize / 360.0)
	}

	for p, pts := range hornIRComponents {
		for s := 1; s < len(pts); s++ {
			from, to := pts[s-1], pts[s]
			fromIdx := degToIndex(from.deg)
			toIdx := degToIndex(to.deg)
			span := toIdx - fromIdx
			if span < 0 {
				span += displcSize
			}
			if span == 0 {
				c.bfw[toIdx&displcMask][p] = float32(to.lvl)
				continue
			}
			for k := 0; k <= span; k++ {
				w := from.lvl + (to.lvl-from.lvl)*float64(k)/float64(span)
				c.bfw[(fromIdx+k)&displcMask][p] = float32(w)
			}
		}
	}

	var sum float64
	for i := 0; i < displcSize; i++ {
		var colsum float64
		for j := 0; j < 5; j++ {
			colsum += math.Abs(float64(c.bfw[i][j]))
		}
		if colsum > sum {
			sum = colsum
		}
	}
	if sum > 0 {
		for i := 0; i < displcSize; i++ {
			for j := 0; j < 5; j++ {
				c.bfw[i][j] = float32(float64(c.bfw[i][j]) / sum)
				c.bbw[displcSize-i-1][j] = c.bfw[i][j]
			}
		}
	}
}

// computeRotationSpeeds rebuilds the 9-entry target table from the RPM
// settings and rebinds the three Speed presets.
func (c *Cabinet) computeRotationSpeeds() {
	hfast := c.hornFastRPM / (c.sampleRate * 60.0)
	hslow := c.hornSlowRPM / (c.sampleRate * 60.0)
	dfast := c.drumFastRPM / (c.sampleRate * 60.0)
	dslow := c.drumSlowRPM / (c.sampleRate * 60.0)

	c.revOptions = [9]revOption{
		{0, 0},
		{0, dslow},
		{0, dfast},
		{hslow, 0},
		{hslow, dslow},
		{hslow, dfast},
		{hfast, 0},
		{hfast, dslow},
		{hfast, dfast},
	}
	c.revSelects = [3]int{4, 0, 8} // Slow, Stop, Fast
	c.applyRevOption(c.revSelects[c.revSelect])
}

// applyRevOption sets both rotors' targets from one of the nine table
// entries and engages the inertia state machines.
func (c *Cabinet) applyRevOption(n int) {
	opt := c.revOptions[n%9]
	c.horn.target = opt.horn
	c.drum.target = opt.drum

	if c.horn.incr < c.horn.target {
		c.horn.acDc = 1
	} else if c.horn.incr > c.horn.target {
		c.horn.acDc = -1
	}
	if c.drum.incr < c.drum.target {
		c.drum.acDc = 1
	} else if c.drum.incr > c.drum.target {
		c.drum.acDc = -1
	}
}

// SetRevOption selects one of the nine stop/slow/fast per-rotor
// combinations.
func (c *Cabinet) SetRevOption(n int) {
	if n < 0 {
		n = 0
	}
	c.applyRevOption(n % 9)
	// derive the nearest three-state preset from the horn speed
	switch (n / 3) % 3 {
	case 2:
		c.revSelect = Fast
	case 1:
		c.revSelect = Slow
	default:
		c.revSelect = Stop
	}
}

// SetSpeed applies a three-state preset;
// horn and drum glide toward their bound targets at their own
// accel/decel rates.
func (c *Cabinet) SetSpeed(speed Speed) {
	if speed < Slow || speed > Fast {
		return
	}
	c.revSelect = speed
	c.applyRevOption(c.revSelects[speed])
}

// ToggleSpeed flips between the slow and fast presets.
func (c *Cabinet) ToggleSpeed() {
	if c.revSelect == Slow {
		c.SetSpeed(Fast)
	} else {
		c.SetSpeed(Slow)
	}
}

// Selected reports the current three-state preset.
func (c *Cabinet) Selected() Speed { return c.revSelect }

// SetRPM updates the four rotor speed settings and rebuilds the target
// table.
func (c *Cabinet) SetRPM(hornSlow, hornFast, drumSlow, drumFast float64) {
	c.hornSlowRPM = hornSlow
	c.hornFastRPM = hornFast
	c.drumSlowRPM = drumSlow
	c.drumFastRPM = drumFast
	c.computeRotationSpeeds()
}

// SetBrakePositions sets the resting angle each rotor seeks when its
// target speed is zero; zero disables the brake.
func (c *Cabinet) SetBrakePositions(hornPos, drumPos float64) {
	c.horn.brakePos = clampUnit(hornPos)
	c.drum.brakePos = clampUnit(drumPos)
}

// SetInertia updates the per-rotor acceleration/deceleration time
// constants in seconds.
func (c *Cabinet) SetInertia(hornAccel, hornDecel, drumAccel, drumDecel float64) {
	if hornAccel > 0 {
		c.horn.accel = hornAccel
	}
	if hornDecel > 0 {
		c.horn.decel = hornDecel
	}
	if drumAccel > 0 {
		c.drum.accel = drumAccel
	}
	if drumDecel > 0 {
		c.drum.decel = drumDecel
	}
}

// SetHornFilterA, SetHornFilterB and SetDrumFilter retune the crossover
// biquads; out-of-range parameters are ignored per the setter contract.
func (c *Cabinet) SetHornFilterA(p FilterParams) {
	c.hornFilterA.set(p.Type, p.Hz, p.Q, p.Gain, c.sampleRate)
}

func (c *Cabinet) SetHornFilterB(p FilterParams) {
	c.hornFilterB.set(p.Type, p.Hz, p.Q, p.Gain, c.sampleRate)
}

func (c *Cabinet) SetDrumFilter(p FilterParams) {
	c.drumParams = p
	c.drumFilterL.set(p.Type, p.Hz, p.Q, p.Gain, c.sampleRate)
	c.drumFilterR.set(p.Type, p.Hz, p.Q, p.Gain, c.sampleRate)
}

// SetWidths rebuilds the stereo mic matrix from the two width knobs in
// [-1,1].
func (c *Cabinet) SetWidths(hornWidth, drumWidth float64) {
	c.hll, c.hlr, c.hrl, c.hrr = widthMatrix(hornWidth)
	c.dll, c.dlr, c.drl, c.drr = widthMatrix(drumWidth)
}

func widthMatrix(w float64) (ll, lr, rl, rr float64) {
	if w < -1 {
		w = -1
	} else if w > 1 {
		w = 1
	}
	wp := math.Max(0, w)
	wn := math.Max(0, -w)
	return math.Sqrt(1 - wp), math.Sqrt(wp), math.Sqrt(wn), math.Sqrt(1 - wn)
}

// SetLevels updates the horn output level and the leakage level (the
// horn signal bled to both mics regardless of angle).
func (c *Cabinet) SetLevels(hornLevel, leakLevel float64) {
	c.hornLevel = hornLevel
	c.leakLevel = leakLevel
	c.leakage = hornLevel * leakLevel
}

// SetBypass short-circuits the cabinet: the mono input is
// copied to both channels unmodified.
func (c *Cabinet) SetBypass(bypass bool) { c.bypass = bypass }

// Rotor phase diagnostics.
func (c *Cabinet) HornAngle() float64 { return c.horn.angle }
func (c *Cabinet) DrumAngle() float64 { return c.drum.angle }
func (c *Cabinet) HornIncr() float64  { return c.horn.incr }
func (c *Cabinet) DrumIncr() float64  { return c.drum.incr }

// IRWeightSum reports the absolute IR row sum at one angle index; the
// tables are normalized so it never exceeds unity.
func (c *Cabinet) IRWeightSum(i int) float64 {
	var s float64
	for j := 0; j < 5; j++ {
		s += math.Abs(float64(c.bfw[i&displcMask][j]))
	}
	return s
}

// hornMotion deposits one Doppler-displaced horn reflection into buf:
// the fractional displacement is linearly interpolated from dsp, the
// five-column IR row (nearest angle) is convolved against the current
// sample and the 4-sample history, and the result is split across the
// two samples bracketing the fractional write position.
func (c *Cabinet) hornMotion(partial int, buf *[bufSize]float32, dsp *[displcSize]float32,
	bw *[displcSize][5]float32, hist *[histLen]float32, hi int, ang float64, x float32) {

	h1 := ang*displcSize + float64(c.hornPhase[partial])
	hl := int(math.Floor(h1)) & displcMask
	hh := (hl + 1) & displcMask
	hd := float32(h1 - math.Floor(h1))
	intp := dsp[hl]*(1-hd) + hd*dsp[hh]

	k := int(math.Round(h1)) & displcMask
	ir := &bw[k]
	xa := ir[0]*x +
		ir[1]*hist[hi] +
		ir[2]*hist[(hi+1)&histMask] +
		ir[3]*hist[(hi+2)&histMask] +
		ir[4]*hist[(hi+3)&histMask]

	t := c.hornSpacing[partial] + float64(intp) + float64(c.outpos)
	r := math.Floor(t)
	q := xa * float32(t-r)
	n := int(r) & bufMask
	buf[n] += xa - q
	buf[(n+1)&bufMask] += q
}

// drumMotion is the drum equivalent with a scalar amplitude (no IR
// row).
func (c *Cabinet) drumMotion(partial int, buf *[bufSize]float32, dsp *[displcSize]float32,
	ang float64, x float32) {

	d1 := ang*displcSize + float64(c.drumPhase[partial])
	dl := int(math.Floor(d1)) & displcMask
	dh := (dl + 1) & displcMask
	dd := float32(d1 - math.Floor(d1))
	intp := dsp[dl]*(1-dd) + dd*dsp[dh]

	t := c.drumSpacing[partial] + float64(intp) + float64(c.outpos)
	r := math.Floor(t)
	q := x * float32(t-r)
	n := int(r) & bufMask
	buf[n] += x - q
	buf[(n+1)&bufMask] += q
}

// filterC is the 2-tap smoother between reflection pairs.
func (c *Cabinet) filterC(x float32, zi int) float32 {
	y := 0.4*x + 0.4*c.z[zi]
	c.z[zi] = x
	return y
}

// Process runs the cabinet over a mono block, writing stereo output
// through the mic matrix (len(left) == len(right) == len(in); blocks
// must not exceed 8192 samples).
func (c *Cabinet) Process(in []float32, left, right []float32) {
	if c.bypass {
		copy(left, in)
		copy(right, in)
		return
	}

	n := len(in)
	hornMoved := c.horn.advanceSpeed(c.sampleRate, n, true)
	drumMoved := c.drum.advanceSpeed(c.sampleRate, n, false)

	fwAng := c.micAngle * 0.25
	bwAng := 1.0 + c.micAngle*(-0.25)

	for i := 0; i < n; i++ {
		x := in[i] + denormalOffset
		xx := x

		// 1) horn speaker characteristics and mic leakage
		x = c.hornFilterA.process(x)
		x = c.hornFilterB.process(x)
		leak := x * float32(c.leakage)

		// 2) horn Doppler: primary pair, then two reflection pairs
		// with a lowpass between each pair
		c.hornMotion(0, &c.hlBuf, &c.hnFwdDispl, &c.bbw, &c.adx0, c.adi0, c.horn.angle+fwAng, x)
		c.hornMotion(1, &c.hrBuf, &c.hnBwdDispl, &c.bfw, &c.adx0, c.adi0, c.horn.angle+bwAng, x)
		c.adi0 = (c.adi0 + histMask) & histMask
		c.adx0[c.adi0] = x

		x = c.filterC(x, 0)
		c.hornMotion(2, &c.hlBuf, &c.hnBwdDispl, &c.bfw, &c.adx1, c.adi1, c.horn.angle+fwAng, x)
		c.hornMotion(3, &c.hrBuf, &c.hnFwdDispl, &c.bbw, &c.adx1, c.adi1, c.horn.angle+bwAng, x)
		c.adi1 = (c.adi1 + histMask) & histMask
		c.adx1[c.adi1] = x

		x = c.filterC(x, 1)
		c.hornMotion(4, &c.hlBuf, &c.hnFwdDispl, &c.bbw, &c.adx2, c.adi2, c.horn.angle+fwAng, x)
		c.hornMotion(5, &c.hrBuf, &c.hnBwdDispl, &c.bfw, &c.adx2, c.adi2, c.horn.angle+bwAng, x)
		c.adi2 = (c.adi2 + histMask) & histMask
		c.adx2[c.adi2] = x

		// 3) drum Doppler on the unfiltered input
		x = xx
		c.drumMotion(0, &c.dlBuf, &c.drFwdDispl, c.drum.angle, x)
		c.drumMotion(1, &c.drBuf, &c.drBwdDispl, c.drum.angle, x)
		x = c.filterC(x, 2)
		c.drumMotion(2, &c.dlBuf, &c.drBwdDispl, c.drum.angle, x)
		c.drumMotion(3, &c.drBuf, &c.drFwdDispl, c.drum.angle, x)
		x = c.filterC(x, 3)
		c.drumMotion(4, &c.dlBuf, &c.drFwdDispl, c.drum.angle, x)
		c.drumMotion(5, &c.drBuf, &c.drBwdDispl, c.drum.angle, x)

		// 4) tone-shape the drum, add the horn, mix through the mic
		// matrix, release the consumed slots
		hornL := float32(c.hornLevel)*c.hlBuf[c.outpos] + leak
		hornR := float32(c.hornLevel)*c.hrBuf[c.outpos] + leak
		drumL := c.drumFilterL.process(c.dlBuf[c.outpos])
		drumR := c.drumFilterR.process(c.drBuf[c.outpos])

		left[i] = float32(c.hll)*hornL + float32(c.hlr)*hornR +
			float32(c.dll)*drumL + float32(c.dlr)*drumR
		right[i] = float32(c.hrl)*hornL + float32(c.hrr)*hornR +
			float32(c.drl)*drumL + float32(c.drr)*drumR

		c.hlBuf[c.outpos] = 0
		c.hrBuf[c.outpos] = 0
		c.dlBuf[c.outpos] = 0
		c.drBuf[c.outpos] = 0

		c.outpos = (c.outpos + 1) & bufMask
		c.horn.angle = math.Mod(c.horn.angle+c.horn.incr, 1.0)
		c.drum.angle = math.Mod(c.drum.angle+c.drum.incr, 1.0)
	}

	// NaN defenders
	c.hornFilterA.defend()
	c.hornFilterB.defend()
	c.drumFilterL.defend()
	c.drumFilterR.defend()
	for i := range c.z {
		if isNaN32(c.z[i]) {
			c.z[i] = 0
		}
	}

	if hornMoved {
		c.horn.incr = 0
	}
	if drumMoved {
		c.drum.incr = 0
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isNaN32(f float32) bool { return f != f }
