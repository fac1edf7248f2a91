package nn

import (
	"errors"
	"math"
	"path/filepath"
	"slices"
	"testing"
)

func TestVarStoreFreshInitIsSeeded(t *testing.T) {
	a := NewVarStore(7).Root().Sub("enc")
	b := NewVarStore(7).Root().Sub("enc")

	wa, err := a.Get("w", XavierUniform(1), 4, 3)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	wb, err := b.Get("w", XavierUniform(1), 4, 3)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if !slices.Equal(wa.Data(), wb.Data()) {
		t.Fatal("same seed produced different parameters")
	}

	bound := math.Sqrt(6.0 / 7.0)
	for _, v := range wa.Data() {
		if math.Abs(float64(v)) > bound {
			t.Fatalf("xavier sample %v outside ±%v", v, bound)
		}
	}
}

func TestVarStoreSharesAndChecksShape(t *testing.T) {
	vs := NewVarStore(1)
	p := vs.Root().Sub("layer")

	first, err := p.Get("bias", Constant(2), 3)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	again, err := p.Get("bias", nil, 3)
	if err != nil {
		t.Fatalf("Get again: %v", err)
	}

	if first != again {
		t.Fatal("second Get returned a different tensor")
	}

	if _, err := p.Get("bias", nil, 4); err == nil {
		t.Fatal("expected shape mismatch error")
	}

	if got := vs.Names(); !slices.Equal(got, []string{"layer.bias"}) {
		t.Fatalf("Names() = %v", got)
	}

	if vs.NumParameters() != 3 {
		t.Fatalf("NumParameters() = %d, want 3", vs.NumParameters())
	}
}

func TestVarStoreSaveAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.safetensors")

	vs := NewVarStore(3)
	if _, err := NewLinear(vs.Root().Sub("proj"), 3, 2, true); err != nil {
		t.Fatalf("NewLinear: %v", err)
	}

	if err := vs.Save(path, map[string]string{"step": "10"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := OpenVarStore(path)
	if err != nil {
		t.Fatalf("OpenVarStore: %v", err)
	}

	if loaded.Metadata()["step"] != "10" {
		t.Fatalf("metadata = %v", loaded.Metadata())
	}

	if got := loaded.Unused(); len(got) != 2 {
		t.Fatalf("Unused() before use = %v, want both tensors", got)
	}

	l, err := NewLinear(loaded.Root().Sub("proj"), 3, 2, true)
	if err != nil {
		t.Fatalf("NewLinear from checkpoint: %v", err)
	}

	orig, _ := vs.Tensor("proj.weight")
	if !slices.Equal(l.Weight.Data(), orig.Data()) {
		t.Fatal("loaded weight differs from saved weight")
	}

	if got := loaded.Unused(); len(got) != 0 {
		t.Fatalf("Unused() = %v, want none", got)
	}

	_, err = loaded.Root().Get("missing", nil, 1)
	if !errors.Is(err, ErrMissingParameter) {
		t.Fatalf("missing parameter error = %v, want ErrMissingParameter", err)
	}

	if _, err := NewLinear(loaded.Root().Sub("proj"), 4, 2, true); err == nil {
		t.Fatal("expected shape error for checkpoint mismatch")
	}
}

func TestPathNaming(t *testing.T) {
	p := NewVarStore(0).Root().Sub("decoder", "", " prenet ").Index(1)
	if got := p.Name("weight"); got != "decoder.prenet.1.weight" {
		t.Fatalf("Name() = %q", got)
	}

	if got := (Path{}).Name("x"); got != "x" {
		t.Fatalf("root Name() = %q", got)
	}

	if _, err := (Path{}).Get("x", nil, 1); err == nil {
		t.Fatal("expected error for path without store")
	}
}
