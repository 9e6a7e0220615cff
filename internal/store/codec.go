package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/lox/ensemblestats/internal/models"
)

// gridBlob is the on-disk form of a grid: msgpack, then zstd.
type gridBlob struct {
	Rows int       `msgpack:"r"`
	Cols int       `msgpack:"c"`
	Data []float64 `msgpack:"d"`
}

// EncodeAll/DecodeAll are safe for concurrent use, so one of each is shared.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeGrid serializes g for a BLOB column.
func EncodeGrid(g models.Grid) ([]byte, error) {
	b, err := msgpack.Marshal(gridBlob{Rows: g.Rows(), Cols: g.Cols(), Data: g.Values()})
	if err != nil {
		return nil, fmt.Errorf("encode grid: %w", err)
	}
	return zstdEncoder.EncodeAll(b, nil), nil
}

// DecodeGrid is the inverse of EncodeGrid.
func DecodeGrid(blob []byte) (models.Grid, error) {
	b, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return models.Grid{}, fmt.Errorf("decompress grid: %w", err)
	}
	var gb gridBlob
	if err := msgpack.Unmarshal(b, &gb); err != nil {
		return models.Grid{}, fmt.Errorf("decode grid: %w", err)
	}
	return models.OwnGrid(gb.Rows, gb.Cols, gb.Data)
}
