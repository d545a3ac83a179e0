// Package native runs geometry operations through GEOS. go-geos reports
// GEOS failures by panicking; every entry point here recovers them into
// errors so a failing row never takes the process down.
package native

import (
	"fmt"
	"sync"

	"geoexpr/pkg/geom"

	"github.com/sirupsen/logrus"
	"github.com/twpayne/go-geos"
	goerrors "gopkg.in/src-d/go-errors.v1"
)

// ErrNative carries the message reported by GEOS.
var ErrNative = goerrors.NewKind("%s")

var log = logrus.WithField("component", "native")

// Engine owns one GEOS context. All geometries handled during a call
// belong to that context.
type Engine struct {
	ctx *geos.Context
}

var engines = sync.Pool{
	New: func() any { return &Engine{ctx: geos.NewContext()} },
}

// Do runs fn with an engine taken from the pool. A GEOS panic raised
// inside fn is returned as an ErrNative error.
func Do(fn func(e *Engine) error) (err error) {
	e := engines.Get().(*Engine)
	defer engines.Put(e)
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return fn(e)
}

func recovered(r any) error {
	var msg string
	switch r := r.(type) {
	case error:
		msg = r.Error()
	default:
		msg = fmt.Sprint(r)
	}
	log.WithField("panic", msg).Debug("recovered native failure")
	return ErrNative.New(msg)
}

// Read decodes an EWKB value into a GEOS geometry.
func (e *Engine) Read(b []byte) (*geos.Geom, error) {
	g, err := e.ctx.NewGeomFromWKB(b)
	if err != nil {
		return nil, ErrNative.New(err.Error())
	}
	return g, nil
}

// Write encodes g as EWKB carrying srid.
func (e *Engine) Write(g *geos.Geom, srid int32) ([]byte, error) {
	return geom.SetSRID(g.ToWKB(), srid)
}

// ReadAll decodes every value of bs.
func (e *Engine) ReadAll(bs [][]byte) ([]*geos.Geom, error) {
	out := make([]*geos.Geom, len(bs))
	for i, b := range bs {
		g, err := e.Read(b)
		if err != nil {
			return nil, err
		}
		out[i] = g
	}
	return out, nil
}

// Context exposes the GEOS context for operations over several geometries.
func (e *Engine) Context() *geos.Context {
	return e.ctx
}

// ParseWKT turns a WKT string into EWKB.
func ParseWKT(s string) ([]byte, error) {
	var out []byte
	err := Do(func(e *Engine) error {
		g, err := e.ctx.NewGeomFromWKT(s)
		if err != nil {
			return ErrNative.New(err.Error())
		}
		out, err = e.Write(g, 0)
		return err
	})
	return out, err
}

// Normalize re-encodes any (E)WKB flavour in the form GEOS writes it,
// keeping the SRID found in the header.
func Normalize(b []byte) ([]byte, error) {
	h, err := geom.ReadHeader(b)
	if err != nil {
		return nil, err
	}
	return Unary(b, h.SRID, func(g *geos.Geom) *geos.Geom { return g })
}

// Unary applies a constructive operation to one value.
func Unary(b []byte, srid int32, fn func(*geos.Geom) *geos.Geom) ([]byte, error) {
	var out []byte
	err := Do(func(e *Engine) error {
		g, err := e.Read(b)
		if err != nil {
			return err
		}
		out, err = e.Write(fn(g), srid)
		return err
	})
	return out, err
}

// Binary applies a constructive operation to a pair of values.
func Binary(a, b []byte, srid int32, fn func(x, y *geos.Geom) *geos.Geom) ([]byte, error) {
	var out []byte
	err := Do(func(e *Engine) error {
		x, err := e.Read(a)
		if err != nil {
			return err
		}
		y, err := e.Read(b)
		if err != nil {
			return err
		}
		out, err = e.Write(fn(x, y), srid)
		return err
	})
	return out, err
}

// Measure computes a scalar from one value.
func Measure[T any](b []byte, fn func(*geos.Geom) T) (T, error) {
	var out T
	err := Do(func(e *Engine) error {
		g, err := e.Read(b)
		if err != nil {
			return err
		}
		out = fn(g)
		return nil
	})
	return out, err
}

// Measure2 computes a scalar from a pair of values.
func Measure2[T any](a, b []byte, fn func(x, y *geos.Geom) T) (T, error) {
	var out T
	err := Do(func(e *Engine) error {
		x, err := e.Read(a)
		if err != nil {
			return err
		}
		y, err := e.Read(b)
		if err != nil {
			return err
		}
		out = fn(x, y)
		return nil
	})
	return out, err
}

// Reduce folds many values into one geometry.
func Reduce(bs [][]byte, srid int32, fn func(e *Engine, gs []*geos.Geom) *geos.Geom) ([]byte, error) {
	var out []byte
	err := Do(func(e *Engine) error {
		gs, err := e.ReadAll(bs)
		if err != nil {
			return err
		}
		out, err = e.Write(fn(e, gs), srid)
		return err
	})
	return out, err
}
