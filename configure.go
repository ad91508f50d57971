package blit

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Configurer prepares the hardware program for one job.
type Configurer struct {
	dev     Device
	binder  *Binder
	metrics *Metrics
}

// NewConfigurer returns a configurer that programs dev and binds buffers
// with binder.
func NewConfigurer(dev Device, binder *Binder, m *Metrics) *Configurer {
	return &Configurer{dev: dev, binder: binder, metrics: m}
}

// Configure reduces the job's operator, binds its user buffers, programs
// the prefetch table and the job registers, and returns the descriptor
// together with the bindings to release once the job has run.
//
// On error the returned *ConfigError is the only result and no bindings
// are outstanding. A MapFailed error means the job must be composited in
// software; it is not retried here.
func (c *Configurer) Configure(ctx context.Context, j *Job) (*Descriptor, *BoundSet, error) {
	log := Logger().With(slog.String("job_id", j.ID.String()))

	if j.Owner != nil && !j.Owner.Live() || j.Owner == nil && j.hasUserSlots() {
		return nil, nil, &ConfigError{Kind: InvalidAddressSpace}
	}

	src, msk, dst := &j.Images[SlotSource], &j.Images[SlotMask], &j.Images[SlotDestination]
	srcOpaque := src.Format.Opaque() && j.sourceCovers()
	if !src.Kind.Memory() {
		srcOpaque = j.Params.FillColor.A == 255
	}
	reduced := Reduce(j.Params.Op, src.Kind.Memory(), srcOpaque, dst.Format.Opaque(),
		j.Params.GlobalAlpha, msk.Kind.Memory())
	j.reduced, j.configured = reduced, true
	if reduced != j.Params.Op {
		c.metrics.RecordReduction(j.Params.Op, reduced)
		log.Debug("blit: operator reduced",
			slog.String("from", j.Params.Op.String()),
			slog.String("to", reduced.String()),
		)
	}

	desc := &Descriptor{
		JobID:         j.ID,
		Op:            reduced,
		Coefficients:  reduced.Coefficients(),
		SrcSelect:     sourceSelector(j),
		DstSelect:     destinationSelector(reduced),
		FillColor:     j.Params.FillColor,
		GlobalAlpha:   j.Params.GlobalAlpha,
		Premultiplied: j.Params.Premultiplied,
		Scaling:       j.Params.Scaling,
		Repeat:        j.Params.Repeat,
	}
	for s := range Slot(NumSlots) {
		desc.Planes[s] = planeDesc(j, s)
	}

	bound := &BoundSet{as: j.Owner}
	committed := false
	defer func() {
		if !committed {
			c.binder.Unbind(bound)
		}
	}()

	for _, s := range []Slot{SlotSource, SlotMask, SlotDestination, SlotDestination2} {
		im := &j.Images[s]
		if !im.Kind.UserOwned() {
			continue
		}
		if s == SlotSource && desc.SrcSelect != SelectMemory {
			continue
		}
		set, err := c.binder.Bind(j.Owner, im.Ranges(s, slotDirection(s)))
		if err != nil {
			c.metrics.RecordMapFailure(s)
			log.Warn("blit: binding failed, falling back to software",
				slog.String("slot", s.String()),
				slog.String("error", err.Error()),
			)
			var me *MapError
			if errors.As(err, &me) {
				err = me.Err
			}
			return nil, nil, &ConfigError{Kind: MapFailed, Slot: s, Err: err}
		}
		bound.Merge(set)
	}

	entries, err := PlanPrefetch(j)
	if err != nil {
		return nil, nil, &ConfigError{Kind: HardwareFault, Err: err}
	}
	if err := c.dev.ConfigurePrefetch(entries); err != nil {
		return nil, nil, &ConfigError{Kind: HardwareFault, Err: err}
	}
	j.prefetch = entries
	desc.Prefetch = entries

	if j.Params.BlueScreen.Mode != BlueScreenOff {
		desc.BlueScreen = j.Params.BlueScreen
	}
	if !j.Params.Rotation.Identity() {
		desc.Rotation = j.Params.Rotation
	}
	if j.Params.Dither {
		desc.Dither = true
	}
	if j.Params.Clip != nil {
		clip := *j.Params.Clip
		desc.Clip = &clip
	}

	if err := c.dev.Configure(desc); err != nil {
		return nil, nil, &ConfigError{Kind: HardwareFault, Err: err}
	}

	log.Debug("blit: job configured",
		slog.String("op", reduced.String()),
		slog.String("src_select", desc.SrcSelect.String()),
		slog.String("dst_select", desc.DstSelect.String()),
		slog.Int("bound_ranges", bound.Len()),
		slog.Int("prefetch_entries", len(entries)),
	)

	trace.SpanFromContext(ctx).AddEvent("configured", trace.WithAttributes(
		attribute.String("blit.op", reduced.String()),
		attribute.Int("blit.bound_ranges", bound.Len()),
		attribute.Int("blit.prefetch_entries", len(entries)),
	))

	committed = true
	return desc, bound, nil
}
