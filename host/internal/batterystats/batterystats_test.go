package batterystats

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

func statsMessage() []byte {
	var s []byte
	s = protowire.AppendTag(s, fieldReportVersion, protowire.VarintType)
	s = protowire.AppendVarint(s, 33)
	s = protowire.AppendTag(s, fieldParcelVersion, protowire.VarintType)
	s = protowire.AppendVarint(s, 186)
	s = protowire.AppendTag(s, fieldStartPlatformVersion, protowire.BytesType)
	s = protowire.AppendString(s, "P")
	s = protowire.AppendTag(s, fieldEndPlatformVersion, protowire.BytesType)
	s = protowire.AppendString(s, "Q")
	for i := 0; i < 3; i++ {
		s = protowire.AppendTag(s, fieldUIDs, protowire.BytesType)
		s = protowire.AppendBytes(s, []byte{0x08, byte(i + 1)})
	}
	s = protowire.AppendTag(s, fieldSystem, protowire.BytesType)
	s = protowire.AppendBytes(s, nil)
	// unknown fixed32 field is skipped
	s = protowire.AppendTag(s, 99, protowire.Fixed32Type)
	s = protowire.AppendFixed32(s, 7)
	return s
}

func TestParse(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldBatteryStats, protowire.BytesType)
	b = protowire.AppendBytes(b, statsMessage())

	got, err := Parse(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := &Dump{
		HasBatterystats:      true,
		ReportVersion:        33,
		ParcelVersion:        186,
		StartPlatformVersion: "P",
		EndPlatformVersion:   "Q",
		UIDCount:             3,
		HasSystem:            true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse (-want +got):\n%s", diff)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParse_EmptyHasNoBatterystats(t *testing.T) {
	d, err := Parse(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !errors.Is(d.Validate(), ErrNoBatteryStats) {
		t.Errorf("Validate = %v, want ErrNoBatteryStats", d.Validate())
	}
}

func TestParse_Truncated(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, fieldBatteryStats, protowire.BytesType)
	b = protowire.AppendVarint(b, 50) // claims 50 bytes, has none
	if _, err := Parse(bytes.NewReader(b)); err == nil {
		t.Fatal("expected error for truncated message")
	}
}

func TestParse_NotProtobuf(t *testing.T) {
	if _, err := Parse(bytes.NewReader([]byte("\x89PNG\r\n\x1a\n"))); err == nil {
		t.Fatal("expected error for PNG bytes")
	}
}
