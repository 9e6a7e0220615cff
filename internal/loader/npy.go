package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/sbinet/npyio"

	"github.com/lox/ensemblestats/internal/models"
)

// readStack reads a (height, width, lead) array and returns one grid per
// lead time. Errors from opening the file are wrapped unchanged so callers
// can test for fs.ErrNotExist.
func readStack(path string) ([]models.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	shape := r.Header.Descr.Shape
	if len(shape) != 3 {
		return nil, fmt.Errorf("read %s: want a 3-d array, got shape %v", path, shape)
	}
	h, w, leads := shape[0], shape[1], shape[2]
	if h <= 0 || w <= 0 || leads <= 0 {
		return nil, fmt.Errorf("read %s: empty array, shape %v", path, shape)
	}

	var data []float64
	switch dtype := r.Header.Descr.Type; {
	case strings.HasSuffix(dtype, "f8"):
		if err := r.Read(&data); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	case strings.HasSuffix(dtype, "f4"):
		var f32 []float32
		if err := r.Read(&f32); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		data = make([]float64, len(f32))
		for i, v := range f32 {
			data[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("read %s: unsupported dtype %q", path, dtype)
	}
	if len(data) != h*w*leads {
		return nil, fmt.Errorf("read %s: %d values for shape %v", path, len(data), shape)
	}

	index := func(i, j, k int) int { return (i*w+j)*leads + k }
	if r.Header.Descr.Fortran {
		index = func(i, j, k int) int { return i + h*(j+w*k) }
	}

	grids := make([]models.Grid, leads)
	for k := 0; k < leads; k++ {
		vals := make([]float64, h*w)
		for i := 0; i < h; i++ {
			for j := 0; j < w; j++ {
				vals[i*w+j] = data[index(i, j, k)]
			}
		}
		g, err := models.OwnGrid(h, w, vals)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		grids[k] = g
	}
	return grids, nil
}
