package app

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"ctleak/adapters/cycles"
	"ctleak/adapters/dut/compare"
	"ctleak/adapters/dut/mulhi"
	"ctleak/adapters/dut/queue"
	"ctleak/adapters/rng"
	"ctleak/domain/core"
	"ctleak/domain/leakage"
	"ctleak/internal/errors"
	"ctleak/internal/generator"
	"ctleak/internal/testkit"
	"ctleak/ports"
)

// tokenSize matches the seven random characters of the classic queue harness.
const tokenSize = 7

// secretSize is the length of the compare targets' secret.
const secretSize = 16

// TargetEnv carries what a target needs to build its device.
type TargetEnv struct {
	Params       leakage.Params
	Seed         uint64
	OperandsFile string
}

// deviceRandom is the source for device-side randomness (tokens, secrets),
// kept apart from the class stream so seeded runs stay reproducible.
func (e TargetEnv) deviceRandom() ports.RandomSource {
	if e.Seed == 0 {
		return rng.NewCrypto()
	}
	return rng.NewSeeded(e.Seed ^ 0xd1b54a32d192ed03)
}

// Instance is a device together with the clock that times it.
type Instance struct {
	Device ports.Device
	Cycles ports.CycleSource
}

// Target is one measurable operation.
type Target struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Synthetic   bool   `json:"synthetic"`

	build func(env TargetEnv) (Instance, error)
}

// Build returns a fresh device for one run.
func (t Target) Build(env TargetEnv) (Instance, error) {
	return t.build(env)
}

// Registry maps target names to their builders.
type Registry struct {
	targets map[string]Target
}

// NewRegistry returns a registry holding every built-in target.
func NewRegistry() *Registry {
	r := &Registry{targets: make(map[string]Target)}
	for _, t := range builtinTargets() {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a target.
func (r *Registry) Register(t Target) {
	r.targets[t.Name] = t
}

// Get returns core.ErrTargetNotFound for unknown names.
func (r *Registry) Get(name string) (Target, error) {
	t, ok := r.targets[name]
	if !ok {
		return Target{}, errors.Wrapf(core.ErrTargetNotFound, "no target named %q", name)
	}
	return t, nil
}

// List returns the targets sorted by name.
func (r *Registry) List() []Target {
	out := make([]Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func hardware(d ports.Device) Instance {
	return Instance{Device: d, Cycles: cycles.Default()}
}

func tokenPool(env TargetEnv) (*generator.TokenPool, error) {
	return generator.NewTokenPool(generator.New(env.deviceRandom()), env.Params.NumberMeasurements, tokenSize)
}

func builtinTargets() []Target {
	return []Target{
		{
			Name:        "queue_insert_tail",
			Description: "insert at the tail of a one element (class 0) or two element (class 1) queue",
			build: func(env TargetEnv) (Instance, error) {
				pool, err := tokenPool(env)
				if err != nil {
					return Instance{}, err
				}
				return hardware(queue.NewInsertTailDevice(pool)), nil
			},
		},
		{
			Name:        "queue_size",
			Description: "size of a one element (class 0) or two element (class 1) queue",
			build: func(env TargetEnv) (Instance, error) {
				pool, err := tokenPool(env)
				if err != nil {
					return Instance{}, err
				}
				return hardware(queue.NewSizeDevice(pool)), nil
			},
		},
		{
			Name:        "mulhi",
			Description: "high half of a 64x64 (class 0) or 32x32 (class 1) multiply, operands from the operand file",
			build: func(env TargetEnv) (Instance, error) {
				ops, err := mulhi.LoadOperands(env.OperandsFile)
				if err != nil {
					return Instance{}, errors.Wrapf(err, "mulhi operands")
				}
				dev, err := mulhi.NewDevice(ops)
				if err != nil {
					return Instance{}, err
				}
				return hardware(dev), nil
			},
		},
		{
			Name:        "ct_compare",
			Description: "mask-accumulating byte compare against a secret",
			build: func(env TargetEnv) (Instance, error) {
				dev, err := compare.NewConstantTime(generator.New(env.deviceRandom()), secretSize)
				if err != nil {
					return Instance{}, err
				}
				return hardware(dev), nil
			},
		},
		{
			Name:        "vt_compare",
			Description: "early-exit byte compare against a secret",
			build: func(env TargetEnv) (Instance, error) {
				dev, err := compare.NewVariableTime(generator.New(env.deviceRandom()), secretSize)
				if err != nil {
					return Instance{}, err
				}
				return hardware(dev), nil
			},
		},
		{
			Name:        "synthetic_constant",
			Description: "virtual clock, both classes N(100, 5) ticks",
			Synthetic:   true,
			build: func(env TargetEnv) (Instance, error) {
				return synthetic(env, 0)
			},
		},
		{
			Name:        "synthetic_leaky",
			Description: "virtual clock, class 1 shifted by +50 ticks",
			Synthetic:   true,
			build: func(env TargetEnv) (Instance, error) {
				return synthetic(env, 50)
			},
		},
	}
}

func synthetic(env TargetEnv, shift float64) (Instance, error) {
	seed := env.Seed
	if seed == 0 {
		var b [8]byte
		if _, err := io.ReadFull(rng.NewCrypto(), b[:]); err != nil {
			return Instance{}, fmt.Errorf("%w: %v", core.ErrRandomnessFailed, err)
		}
		seed = binary.LittleEndian.Uint64(b[:])
	}
	clock := testkit.NewVirtualClock(1 << 32)
	dev := testkit.NewSyntheticDevice(clock, testkit.NormalTiming(seed, 100, 5, shift))
	return Instance{Device: dev, Cycles: clock}, nil
}
