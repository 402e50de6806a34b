// Package batterystats decodes the protobuf form of `dumpsys batterystats
// --proto` (BatteryStatsServiceDumpProto) far enough to validate a dump and
// report its headline fields.
//
// Decoding is done at the wire level with protowire, so no generated message
// types are needed. Unknown fields are skipped.
package batterystats

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNoBatteryStats is returned when the dump has no batterystats message.
var ErrNoBatteryStats = errors.New("batterystats: dump has no batterystats field")

// Field numbers of BatteryStatsServiceDumpProto and BatteryStatsProto.
const (
	fieldBatteryStats = 1

	fieldReportVersion        = 1
	fieldParcelVersion        = 2
	fieldStartPlatformVersion = 3
	fieldEndPlatformVersion   = 4
	fieldUIDs                 = 5
	fieldSystem               = 6
)

// Dump is the decoded summary of one dump.
type Dump struct {
	HasBatterystats      bool
	ReportVersion        int32
	ParcelVersion        int64
	StartPlatformVersion string
	EndPlatformVersion   string
	UIDCount             int
	HasSystem            bool
}

// Parse reads a serialized BatteryStatsServiceDumpProto from r.
func Parse(r io.Reader) (*Dump, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("batterystats: read: %w", err)
	}
	return Unmarshal(b)
}

// Unmarshal decodes b. An empty message is valid and yields a Dump with
// HasBatterystats unset.
func Unmarshal(b []byte) (*Dump, error) {
	d := &Dump{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num == fieldBatteryStats && typ == protowire.BytesType {
			d.HasBatterystats = true
			return d.unmarshalStats(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dump) unmarshalStats(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error {
		switch {
		case num == fieldReportVersion && typ == protowire.VarintType:
			d.ReportVersion = int32(n)
		case num == fieldParcelVersion && typ == protowire.VarintType:
			d.ParcelVersion = int64(n)
		case num == fieldStartPlatformVersion && typ == protowire.BytesType:
			d.StartPlatformVersion = string(v)
		case num == fieldEndPlatformVersion && typ == protowire.BytesType:
			d.EndPlatformVersion = string(v)
		case num == fieldUIDs && typ == protowire.BytesType:
			d.UIDCount++
		case num == fieldSystem && typ == protowire.BytesType:
			d.HasSystem = true
		}
		return nil
	})
}

// walk calls fn for each field in b. Bytes fields pass their payload in v,
// varint fields their value in n.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, n uint64) error) error {
	for len(b) > 0 {
		num, typ, l := protowire.ConsumeTag(b)
		if l < 0 {
			return fmt.Errorf("batterystats: bad tag: %w", protowire.ParseError(l))
		}
		b = b[l:]
		var (
			v []byte
			n uint64
		)
		switch typ {
		case protowire.VarintType:
			n, l = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			v, l = protowire.ConsumeBytes(b)
		default:
			l = protowire.ConsumeFieldValue(num, typ, b)
		}
		if l < 0 {
			return fmt.Errorf("batterystats: field %d: %w", num, protowire.ParseError(l))
		}
		b = b[l:]
		if err := fn(num, typ, v, n); err != nil {
			return err
		}
	}
	return nil
}

// Validate returns ErrNoBatteryStats when the dump lacks the batterystats
// message.
func (d *Dump) Validate() error {
	if !d.HasBatterystats {
		return ErrNoBatteryStats
	}
	return nil
}
