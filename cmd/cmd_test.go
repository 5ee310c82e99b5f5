package cmd

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/rmitchellscott/inkprep/internal/display"
	"github.com/rmitchellscott/inkprep/internal/imageprocessing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTestImage(t *testing.T, dir string, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width; i++ {
		for j := 0; j < height; j++ {
			img.Set(i, j, color.RGBA{uint8(i), uint8(j), 200, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "source.png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseCrop(t *testing.T) {
	tests := []struct {
		in      string
		want    *imageprocessing.CropRegion
		wantErr bool
	}{
		{"", nil, false},
		{"1,2,3,4", &imageprocessing.CropRegion{X: 1, Y: 2, Width: 3, Height: 4}, false},
		{" 0, 0, 10, 5 ", &imageprocessing.CropRegion{Width: 10, Height: 5}, false},
		{"1,2,3", nil, true},
		{"a,b,c,d", nil, true},
	}
	for _, tt := range tests {
		got, err := parseCrop(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCrop(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("parseCrop(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDisplaysOutputFormats(t *testing.T) {
	t.Cleanup(func() { displaysOutput = "table" })

	out, err := execute(t, "displays", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var fromJSON []display.Description
	if err := json.Unmarshal([]byte(out), &fromJSON); err != nil {
		t.Fatalf("json output: %v", err)
	}

	out, err = execute(t, "displays", "-o", "yaml")
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML []display.Description
	if err := yaml.Unmarshal([]byte(out), &fromYAML); err != nil {
		t.Fatalf("yaml output: %v", err)
	}
	if len(fromJSON) != len(display.Variants()) || len(fromYAML) != len(fromJSON) {
		t.Errorf("json %d, yaml %d displays", len(fromJSON), len(fromYAML))
	}

	out, err = execute(t, "displays", "-o", "table")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "impression480") || !strings.Contains(out, "800x480") {
		t.Errorf("table output missing impression480:\n%s", out)
	}

	if _, err := execute(t, "displays", "-o", "xml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestPrepareWritesPanelPNG(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, 120, 90)
	output := filepath.Join(dir, "out.png")
	t.Cleanup(func() { prepPalette, prepCrop, prepOutput = "", "", "" })

	out, err := execute(t, "prepare", src, "-d", "phat104", "-p", "black", "-o", output, "--crop", "0,0,106,52")
	if err != nil {
		t.Fatalf("prepare: %v\n%s", err, out)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	paletted, ok := img.(*image.Paletted)
	if !ok {
		t.Fatalf("output is %T, want paletted", img)
	}
	if b := paletted.Bounds(); b.Dx() != 212 || b.Dy() != 104 {
		t.Errorf("output size %v", b)
	}
	if len(paletted.Palette) != 2 {
		t.Errorf("palette has %d entries, want 2", len(paletted.Palette))
	}
	if !strings.Contains(out, "212x104") {
		t.Errorf("summary = %q", out)
	}
}

func TestPrepareRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, 50, 50)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown display", []string{"prepare", src, "-d", "nope"}},
		{"unsupported palette", []string{"prepare", src, "-d", "impression480", "-p", "red"}},
		{"crop outside", []string{"prepare", src, "-d", "phat104", "--crop", "0,0,80,80", "-o", filepath.Join(dir, "x.png")}},
		{"missing file", []string{"prepare", filepath.Join(dir, "missing.png"), "-d", "phat104"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() { prepPalette, prepCrop, prepOutput = "", "", "" })
			if _, err := execute(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDimensionsCommand(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, 33, 21)
	junk := filepath.Join(dir, "junk.bin")
	if err := os.WriteFile(junk, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "dimensions", src)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "33x21 png") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "dimensions", src, junk)
	if err == nil {
		t.Error("unreadable file not reported")
	}
	if !strings.Contains(out, "junk.bin") {
		t.Errorf("output = %q", out)
	}
}
