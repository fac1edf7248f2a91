package ops

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/example/go-tacotron/internal/runtime/tensor"
)

// SamePadding returns the left/right zero padding that keeps the sequence
// length unchanged for a stride-1 convolution. Even kernels put the extra
// sample on the right.
func SamePadding(kernelSize, dilation int) (left, right int) {
	p := (kernelSize - 1) * dilation / 2
	if kernelSize%2 != 0 {
		return p, p
	}

	return p, p + 1
}

// Conv1D performs a stride-1 Conv1d with explicit asymmetric padding.
// input: [batch, in_channels, length]
// kernel: [out_channels, in_channels, kernel_size]
//
// The convolution is rearranged into a GEMM by building a patch matrix
// (im2col) of shape [outLength, inChannels*kernelSize]; the kernel viewed as
// [outChannels, inChannels*kernelSize] then multiplies its transpose.
func Conv1D(input, kernel, bias *tensor.Tensor, padLeft, padRight, dilation int) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: conv1d requires non-nil input/kernel")
	}

	if dilation <= 0 || padLeft < 0 || padRight < 0 {
		return nil, errors.New("ops: conv1d dilation must be > 0 and padding >= 0")
	}

	if input.Rank() != 3 || kernel.Rank() != 3 {
		return nil, fmt.Errorf("ops: conv1d expects input/kernel rank 3, got %v and %v", input.Shape(), kernel.Shape())
	}

	batch, inCh, length := input.Dim(0), input.Dim(1), input.Dim(2)
	outCh, kIn, kSize := kernel.Dim(0), kernel.Dim(1), kernel.Dim(2)

	if kIn != inCh {
		return nil, fmt.Errorf("ops: conv1d kernel in_channels %d does not match input channels %d", kIn, inCh)
	}

	if bias != nil && (bias.Rank() != 1 || bias.Dim(0) != outCh) {
		return nil, fmt.Errorf("ops: conv1d bias shape %v does not match out_channels %d", bias.Shape(), outCh)
	}

	outLen := length + padLeft + padRight - dilation*(kSize-1)
	if outLen <= 0 {
		return nil, fmt.Errorf("ops: conv1d produced non-positive output length %d", outLen)
	}

	out, err := tensor.Zeros([]int64{int64(batch), int64(outCh), int64(outLen)})
	if err != nil {
		return nil, err
	}

	patchLen := inCh * kSize
	imcol := make([]float32, outLen*patchLen)
	inData := input.RawData()
	kData := kernel.RawData()
	outData := out.RawData()

	for b := range batch {
		clear(imcol)

		for ic := range inCh {
			inBase := (b*inCh + ic) * length
			for kx := range kSize {
				col := ic*kSize + kx
				for ox := range outLen {
					inPos := ox - padLeft + kx*dilation
					if inPos >= 0 && inPos < length {
						imcol[ox*patchLen+col] = inData[inBase+inPos]
					}
				}
			}
		}

		outB := outData[b*outCh*outLen : (b+1)*outCh*outLen]
		blas32.Gemm(blas.NoTrans, blas.Trans, 1,
			blas32.General{Rows: outCh, Cols: patchLen, Stride: patchLen, Data: kData},
			blas32.General{Rows: outLen, Cols: patchLen, Stride: patchLen, Data: imcol},
			0,
			blas32.General{Rows: outCh, Cols: outLen, Stride: outLen, Data: outB},
		)

		if bias != nil {
			bData := bias.RawData()
			for oc := range outCh {
				row := outB[oc*outLen : (oc+1)*outLen]
				for i := range row {
					row[i] += bData[oc]
				}
			}
		}
	}

	return out, nil
}
