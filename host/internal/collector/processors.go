package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/instrumentkit/instrumentkit/host/internal/batterystats"
)

// BatteryStatsMarker appears in the name of every battery stats proto file
// written by the device listener.
const BatteryStatsMarker = "batterystatsproto"

// BatteryStatsProcessor validates pulled battery stats dumps and deletes
// them.
type BatteryStatsProcessor struct {
	// RecordPath records the host path of the file under its metric key.
	RecordPath bool
	// OnDump, when set, receives every decoded dump.
	OnDump func(key string, d *batterystats.Dump)
}

func (p *BatteryStatsProcessor) ProcessFile(_ context.Context, key, file string, data *MetricData) (err error) {
	defer func() { err = errors.Join(err, removeFile(file)) }()

	if name := filepath.Base(file); !strings.Contains(name, BatteryStatsMarker) {
		return fmt.Errorf("file %s does not contain %q in its name", name, BatteryStatsMarker)
	}
	if p.RecordPath {
		abs, aerr := filepath.Abs(file)
		if aerr != nil {
			abs = file
		}
		data.Add(key, abs)
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	d, err := batterystats.Parse(bufio.NewReader(f))
	if err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if p.OnDump != nil {
		p.OnDump(key, d)
	}
	return nil
}

// ScreenshotProcessor checks that a pulled file is a non-empty PNG and
// deletes it.
type ScreenshotProcessor struct {
	// OnImage, when set, receives the image dimensions.
	OnImage func(key string, width, height int)
}

func (p *ScreenshotProcessor) ProcessFile(_ context.Context, key, file string, _ *MetricData) (err error) {
	defer func() { err = errors.Join(err, removeFile(file)) }()

	if name := filepath.Base(file); !strings.Contains(name, "png") {
		return fmt.Errorf("file %s is not named as a png", name)
	}
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() == 0 {
		return fmt.Errorf("screenshot %s is empty", filepath.Base(file))
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	if ct := http.DetectContentType(head[:n]); ct != "image/png" {
		return fmt.Errorf("screenshot %s has content type %s, want image/png", filepath.Base(file), ct)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("screenshot %s: %w", filepath.Base(file), err)
	}
	if p.OnImage != nil {
		p.OnImage(key, cfg.Width, cfg.Height)
	}
	return nil
}

// FileTypeProcessor routes pulled files by name. Battery stats protos and
// PNG screenshots go to their processors; any other file is kept on the host
// and its path recorded under the metric key.
type FileTypeProcessor struct {
	BatteryStats BatteryStatsProcessor
	Screenshot   ScreenshotProcessor
}

func (p *FileTypeProcessor) ProcessFile(ctx context.Context, key, file string, data *MetricData) error {
	name := filepath.Base(file)
	switch {
	case strings.Contains(name, BatteryStatsMarker):
		return p.BatteryStats.ProcessFile(ctx, key, file, data)
	case strings.HasSuffix(name, ".png"):
		return p.Screenshot.ProcessFile(ctx, key, file, data)
	}
	data.Add(key, file)
	return nil
}

func removeFile(file string) error {
	if err := os.Remove(file); err != nil {
		return fmt.Errorf("delete %s: %w", file, err)
	}
	return nil
}

// Sheller runs device shell commands. *adb.Device satisfies it.
type Sheller interface {
	Shell(ctx context.Context, args ...string) (string, error)
}

// BatteryLevelCollect returns a CollectFunc that records the battery level
// reported by `dumpsys battery` as battery_level<i>.
func BatteryLevelCollect(dev Sheller) CollectFunc {
	return func(ctx context.Context, i int, run *MetricData) error {
		out, err := dev.Shell(ctx, "dumpsys", "battery")
		if err != nil {
			return err
		}
		level, ok := batteryLevel(out)
		if !ok {
			return errors.New("dumpsys battery: no level reported")
		}
		run.Add(fmt.Sprintf("battery_level%d", i), level)
		return nil
	}
}

func batteryLevel(dumpsys string) (string, bool) {
	for _, line := range strings.Split(dumpsys, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && k == "level" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
