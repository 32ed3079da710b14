package ncio

import (
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Particle mirrors the fields of flowroute.Particle that are worth
// persisting to a checkpoint. ncio stays independent of package flowroute;
// flowroute.CheckpointStore converts at the boundary.
type Particle struct {
	IY, IX int
	Volume float64
	Timer  float64
	Class  int
}

// ConfigEcho mirrors the subset of flowroute.RunConfig worth recording as
// checkpoint attributes. ReadCheckpoint parses it back so the caller
// (flowroute.CheckpointStore.Load) can run flowroute.RunConfig.Compatible
// against the restart's own configuration.
type ConfigEcho struct {
	Alpha, THillslope, TChannel, Beta, VTarget, VMin, Dt float64
	Ranks      int
	DomainPath string
}

// Checkpoint is the full serialized engine state for one rank (§4.10, §6):
// the cumulative fields, every resident particle, elapsed time and step
// counter, diagnostics, and a configuration echo used to detect an
// incompatible restart.
type Checkpoint struct {
	Ny, Nx   int
	Encoding Encoding

	P, Q        *sparse.DenseArray
	A           *sparse.DenseArray // flow accumulation, optional; nil if not stored
	Residual    *sparse.DenseArray // per-cell spawn residual carried forward

	Particles []Particle

	ElapsedTime float64
	Step        int

	Outflow      float64
	BoundaryLoss float64
	ResidualSum  float64

	Config *ConfigEcho
}

// WriteCheckpoint writes c to path using the same header-construction
// sequence as sr.createOrOpenOutputFile, extended with a particles
// dimension and the p_iy/p_ix/p_volume/p_timer/p_class variables named in
// §6.
func WriteCheckpoint(path string, c *Checkpoint) error {
	n := len(c.Particles)
	if n == 0 {
		n = 1 // cdf forbids a zero-length non-record dimension
	}
	h := cdf.NewHeader(
		[]string{"latitude", "longitude", "particles"},
		[]int{c.Ny, c.Nx, n},
	)
	h.AddVariable("P", []string{"latitude", "longitude"}, []float64{0})
	h.AddVariable("Q", []string{"latitude", "longitude"}, []float64{0})
	h.AddVariable("residual", []string{"latitude", "longitude"}, []float64{0})
	hasA := c.A != nil
	if hasA {
		h.AddVariable("A", []string{"latitude", "longitude"}, []float64{0})
	}

	h.AddVariable("p_iy", []string{"particles"}, []int32{0})
	h.AddVariable("p_ix", []string{"particles"}, []int32{0})
	h.AddVariable("p_volume", []string{"particles"}, []float64{0})
	h.AddVariable("p_timer", []string{"particles"}, []float64{0})
	h.AddVariable("p_class", []string{"particles"}, []int32{0})

	h.AddVariable("elapsed_time", []string{}, []float64{0})
	h.AddVariable("step", []string{}, []int32{0})
	h.AddVariable("outflow", []string{}, []float64{0})
	h.AddVariable("boundary_loss", []string{}, []float64{0})
	h.AddVariable("residual_sum", []string{}, []float64{0})
	h.AddVariable("num_particles", []string{}, []int32{0})

	h.AddAttribute("", "encoding", []int32{int32(c.Encoding)})
	writeConfigAttrs(h, c.Config)

	osf, f, err := createForWrite(path, h)
	if err != nil {
		return err
	}
	defer osf.Close()

	if _, err := f.Writer("P", []int{0, 0}, []int{c.Ny, c.Nx}).Write(c.P.Elements); err != nil {
		return err
	}
	if _, err := f.Writer("Q", []int{0, 0}, []int{c.Ny, c.Nx}).Write(c.Q.Elements); err != nil {
		return err
	}
	residual := c.Residual
	if residual == nil {
		residual = sparse.ZerosDense(c.Ny, c.Nx)
	}
	if _, err := f.Writer("residual", []int{0, 0}, []int{c.Ny, c.Nx}).Write(residual.Elements); err != nil {
		return err
	}
	if hasA {
		if _, err := f.Writer("A", []int{0, 0}, []int{c.Ny, c.Nx}).Write(c.A.Elements); err != nil {
			return err
		}
	}

	iy := make([]int32, len(c.Particles))
	ix := make([]int32, len(c.Particles))
	vol := make([]float64, len(c.Particles))
	timer := make([]float64, len(c.Particles))
	class := make([]int32, len(c.Particles))
	for i, p := range c.Particles {
		iy[i], ix[i] = int32(p.IY), int32(p.IX)
		vol[i], timer[i] = p.Volume, p.Timer
		class[i] = int32(p.Class)
	}
	if len(c.Particles) == 0 {
		iy, ix, vol, timer, class = []int32{0}, []int32{0}, []float64{0}, []float64{0}, []int32{0}
	}
	if _, err := f.Writer("p_iy", []int{0}, []int{len(iy)}).Write(iy); err != nil {
		return err
	}
	if _, err := f.Writer("p_ix", []int{0}, []int{len(ix)}).Write(ix); err != nil {
		return err
	}
	if _, err := f.Writer("p_volume", []int{0}, []int{len(vol)}).Write(vol); err != nil {
		return err
	}
	if _, err := f.Writer("p_timer", []int{0}, []int{len(timer)}).Write(timer); err != nil {
		return err
	}
	if _, err := f.Writer("p_class", []int{0}, []int{len(class)}).Write(class); err != nil {
		return err
	}

	if _, err := f.Writer("elapsed_time", nil, nil).Write([]float64{c.ElapsedTime}); err != nil {
		return err
	}
	if _, err := f.Writer("step", nil, nil).Write([]int32{int32(c.Step)}); err != nil {
		return err
	}
	if _, err := f.Writer("outflow", nil, nil).Write([]float64{c.Outflow}); err != nil {
		return err
	}
	if _, err := f.Writer("boundary_loss", nil, nil).Write([]float64{c.BoundaryLoss}); err != nil {
		return err
	}
	if _, err := f.Writer("residual_sum", nil, nil).Write([]float64{c.ResidualSum}); err != nil {
		return err
	}
	if _, err := f.Writer("num_particles", nil, nil).Write([]int32{int32(len(c.Particles))}); err != nil {
		return err
	}
	return cdf.UpdateNumRecs(osf)
}

// ReadCheckpoint reads a checkpoint container written by WriteCheckpoint.
func ReadCheckpoint(path string) (*Checkpoint, error) {
	osf, f, err := openForRead(path)
	if err != nil {
		return nil, err
	}
	defer osf.Close()

	lengths := f.Header.Lengths("P")
	ny, nx := lengths[0], lengths[1]

	pFlat, err := readVarFloat64(f, "P", ny, nx)
	if err != nil {
		return nil, err
	}
	qFlat, err := readVarFloat64(f, "Q", ny, nx)
	if err != nil {
		return nil, err
	}
	c := &Checkpoint{
		Ny: ny, Nx: nx,
		P: sparse.ZerosDense(ny, nx),
		Q: sparse.ZerosDense(ny, nx),
	}
	copy(c.P.Elements, flatten64(pFlat, ny, nx))
	copy(c.Q.Elements, flatten64(qFlat, ny, nx))

	for _, v := range f.Header.Variables() {
		if v == "residual" {
			resFlat, err := readVarFloat64(f, "residual", ny, nx)
			if err == nil {
				c.Residual = sparse.ZerosDense(ny, nx)
				copy(c.Residual.Elements, flatten64(resFlat, ny, nx))
			}
			break
		}
	}

	for _, v := range f.Header.Variables() {
		if v == "A" {
			aFlat, err := readVarFloat64(f, "A", ny, nx)
			if err == nil {
				c.A = sparse.ZerosDense(ny, nx)
				copy(c.A.Elements, flatten64(aFlat, ny, nx))
			}
			break
		}
	}

	if enc, ok := f.Header.GetAttribute("", "encoding").([]int32); ok && len(enc) > 0 {
		c.Encoding = Encoding(enc[0])
	}

	n := f.Header.Lengths("p_iy")[0]
	iyR := f.Reader("p_iy", nil, nil)
	iyBuf := iyR.Zero(-1)
	iyR.Read(iyBuf)
	ixR := f.Reader("p_ix", nil, nil)
	ixBuf := ixR.Zero(-1)
	ixR.Read(ixBuf)
	volR := f.Reader("p_volume", nil, nil)
	volBuf := volR.Zero(-1)
	volR.Read(volBuf)
	timerR := f.Reader("p_timer", nil, nil)
	timerBuf := timerR.Zero(-1)
	timerR.Read(timerBuf)
	classR := f.Reader("p_class", nil, nil)
	classBuf := classR.Zero(-1)
	classR.Read(classBuf)

	numR := f.Reader("num_particles", nil, nil)
	numBuf := numR.Zero(-1)
	numR.Read(numBuf)
	numParticles := int(numBuf.([]int32)[0])
	if numParticles > n {
		numParticles = n
	}

	iyS, ixS := iyBuf.([]int32), ixBuf.([]int32)
	volS, timerS := volBuf.([]float64), timerBuf.([]float64)
	classS := classBuf.([]int32)
	c.Particles = make([]Particle, numParticles)
	for i := 0; i < numParticles; i++ {
		c.Particles[i] = Particle{
			IY: int(iyS[i]), IX: int(ixS[i]),
			Volume: volS[i], Timer: timerS[i],
			Class: int(classS[i]),
		}
	}

	elR := f.Reader("elapsed_time", nil, nil)
	elBuf := elR.Zero(-1)
	elR.Read(elBuf)
	c.ElapsedTime = elBuf.([]float64)[0]

	stepR := f.Reader("step", nil, nil)
	stepBuf := stepR.Zero(-1)
	stepR.Read(stepBuf)
	c.Step = int(stepBuf.([]int32)[0])

	outR := f.Reader("outflow", nil, nil)
	outBuf := outR.Zero(-1)
	outR.Read(outBuf)
	c.Outflow = outBuf.([]float64)[0]

	blR := f.Reader("boundary_loss", nil, nil)
	blBuf := blR.Zero(-1)
	blR.Read(blBuf)
	c.BoundaryLoss = blBuf.([]float64)[0]

	resR := f.Reader("residual_sum", nil, nil)
	resBuf := resR.Zero(-1)
	resR.Read(resBuf)
	c.ResidualSum = resBuf.([]float64)[0]

	c.Config = readConfigAttrs(f.Header)

	return c, nil
}

// readConfigAttrs recovers the ConfigEcho written by writeConfigAttrs,
// tolerating a checkpoint written without one (returns nil).
func readConfigAttrs(h *cdf.Header) *ConfigEcho {
	domainPath, ok := h.GetAttribute("", "config_domain_path").(string)
	if !ok {
		return nil
	}
	cfg := &ConfigEcho{DomainPath: domainPath}
	if v, ok := h.GetAttribute("", "config_alpha").([]float64); ok && len(v) > 0 {
		cfg.Alpha = v[0]
	}
	if v, ok := h.GetAttribute("", "config_t_hillslope").([]float64); ok && len(v) > 0 {
		cfg.THillslope = v[0]
	}
	if v, ok := h.GetAttribute("", "config_t_channel").([]float64); ok && len(v) > 0 {
		cfg.TChannel = v[0]
	}
	if v, ok := h.GetAttribute("", "config_beta").([]float64); ok && len(v) > 0 {
		cfg.Beta = v[0]
	}
	if v, ok := h.GetAttribute("", "config_v_target").([]float64); ok && len(v) > 0 {
		cfg.VTarget = v[0]
	}
	if v, ok := h.GetAttribute("", "config_v_min").([]float64); ok && len(v) > 0 {
		cfg.VMin = v[0]
	}
	if v, ok := h.GetAttribute("", "config_dt").([]float64); ok && len(v) > 0 {
		cfg.Dt = v[0]
	}
	if v, ok := h.GetAttribute("", "config_ranks").([]int32); ok && len(v) > 0 {
		cfg.Ranks = int(v[0])
	}
	return cfg
}

// writeConfigAttrs echoes the run configuration as global scalar
// attributes, for operator inspection on a later restart.
func writeConfigAttrs(h *cdf.Header, cfg *ConfigEcho) {
	if cfg == nil {
		return
	}
	h.AddAttribute("", "config_alpha", []float64{cfg.Alpha})
	h.AddAttribute("", "config_t_hillslope", []float64{cfg.THillslope})
	h.AddAttribute("", "config_t_channel", []float64{cfg.TChannel})
	h.AddAttribute("", "config_beta", []float64{cfg.Beta})
	h.AddAttribute("", "config_v_target", []float64{cfg.VTarget})
	h.AddAttribute("", "config_v_min", []float64{cfg.VMin})
	h.AddAttribute("", "config_dt", []float64{cfg.Dt})
	h.AddAttribute("", "config_ranks", []int32{int32(cfg.Ranks)})
	h.AddAttribute("", "config_domain_path", cfg.DomainPath)
}
