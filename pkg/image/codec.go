package image

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"
)

// The on-disk form is a gzip stream containing a YAML header document,
// the YAML end-of-document marker on its own line, then the raw payload in
// little-endian order with the volume axis fastest.

const codecFormat = "mpnoise-image/1"

type headerDoc struct {
	Format          string            `yaml:"format"`
	Size            []int             `yaml:"size"`
	Spacing         []float64         `yaml:"spacing"`
	Transform       [][]float64       `yaml:"transform"`
	Datatype        string            `yaml:"datatype"`
	IntensityOffset float64           `yaml:"intensity_offset"`
	IntensityScale  float64           `yaml:"intensity_scale"`
	KeyValues       map[string]string `yaml:"keyvalues,omitempty"`
}

// Save writes the image to path. On any failure the partial file is removed.
func Save(im *Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("image: create %s: %w", path, err)
	}
	if err := write(im, f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("image: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("image: close %s: %w", path, err)
	}
	return nil
}

func write(im *Image, w io.Writer) error {
	zw := gzip.NewWriter(w)
	hdr := im.Header()
	doc := headerDoc{
		Format:          codecFormat,
		Size:            sizeSlice(hdr),
		Spacing:         hdr.Spacing[:],
		Datatype:        hdr.DT.String(),
		IntensityOffset: hdr.IntensityOffset,
		IntensityScale:  hdr.IntensityScale,
		KeyValues:       hdr.KeyValues,
	}
	for r := 0; r < 3; r++ {
		row := make([]float64, 4)
		copy(row, hdr.Trans.M[r][:])
		doc.Transform = append(doc.Transform, row)
	}
	enc, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	if _, err := zw.Write(enc); err != nil {
		return err
	}
	if _, err := io.WriteString(zw, "...\n"); err != nil {
		return err
	}
	if err := writePayload(zw, im); err != nil {
		return err
	}
	return zw.Close()
}

func writePayload(w io.Writer, im *Image) error {
	switch {
	case im.f32 != nil:
		return binary.Write(w, binary.LittleEndian, im.f32)
	case im.f64 != nil:
		return binary.Write(w, binary.LittleEndian, im.f64)
	case im.c64 != nil:
		return binary.Write(w, binary.LittleEndian, im.c64)
	case im.c128 != nil:
		return binary.Write(w, binary.LittleEndian, im.c128)
	case im.u16 != nil:
		return binary.Write(w, binary.LittleEndian, im.u16)
	case im.u32 != nil:
		return binary.Write(w, binary.LittleEndian, im.u32)
	}
	return fmt.Errorf("no payload")
}

// Load reads an image written by Save.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("image: open %s: %w", path, err)
	}
	defer f.Close()
	im, err := read(f, path)
	if err != nil {
		return nil, fmt.Errorf("image: read %s: %w", path, err)
	}
	return im, nil
}

func read(r io.Reader, name string) (*Image, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	br := bufio.NewReader(zr)
	var head bytes.Buffer
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("truncated header: %w", err)
		}
		if bytes.Equal(bytes.TrimRight(line, "\n"), []byte("...")) {
			break
		}
		head.Write(line)
	}
	var doc headerDoc
	if err := yaml.Unmarshal(head.Bytes(), &doc); err != nil {
		return nil, err
	}
	if doc.Format != codecFormat {
		return nil, fmt.Errorf("unsupported format %q", doc.Format)
	}
	hdr, err := docToHeader(doc)
	if err != nil {
		return nil, err
	}
	im, err := New(hdr, name)
	if err != nil {
		return nil, err
	}
	if err := readPayload(br, im); err != nil {
		return nil, err
	}
	return im, nil
}

func readPayload(r io.Reader, im *Image) error {
	switch {
	case im.f32 != nil:
		return binary.Read(r, binary.LittleEndian, im.f32)
	case im.f64 != nil:
		return binary.Read(r, binary.LittleEndian, im.f64)
	case im.c64 != nil:
		return binary.Read(r, binary.LittleEndian, im.c64)
	case im.c128 != nil:
		return binary.Read(r, binary.LittleEndian, im.c128)
	case im.u16 != nil:
		return binary.Read(r, binary.LittleEndian, im.u16)
	case im.u32 != nil:
		return binary.Read(r, binary.LittleEndian, im.u32)
	}
	return fmt.Errorf("no payload")
}

func docToHeader(doc headerDoc) (Header, error) {
	var hdr Header
	if len(doc.Size) != 3 && len(doc.Size) != 4 {
		return hdr, fmt.Errorf("bad size %v", doc.Size)
	}
	copy(hdr.Size[:], doc.Size)
	if len(doc.Spacing) != 3 {
		return hdr, fmt.Errorf("bad spacing %v", doc.Spacing)
	}
	copy(hdr.Spacing[:], doc.Spacing)
	if len(doc.Transform) != 3 {
		return hdr, fmt.Errorf("bad transform")
	}
	for r := 0; r < 3; r++ {
		if len(doc.Transform[r]) != 4 {
			return hdr, fmt.Errorf("bad transform row %d", r)
		}
		copy(hdr.Trans.M[r][:], doc.Transform[r])
	}
	dt, err := ParseDType(doc.Datatype)
	if err != nil {
		return hdr, err
	}
	hdr.DT = dt
	hdr.IntensityOffset = doc.IntensityOffset
	hdr.IntensityScale = doc.IntensityScale
	hdr.KeyValues = doc.KeyValues
	return hdr, nil
}

func sizeSlice(hdr Header) []int {
	if hdr.NDim() == 4 {
		return hdr.Size[:]
	}
	return hdr.Size[:3]
}
