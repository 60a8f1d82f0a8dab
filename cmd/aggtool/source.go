// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/govalues/decimal"
	pqLocal "github.com/xitongsys/parquet-go-source/local"
	pqReader "github.com/xitongsys/parquet-go/reader"
	pqSource "github.com/xitongsys/parquet-go/source"

	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
)

// source fills chunks with input rows. An empty chunk marks the end.
type source interface {
	next(output *chunk.Chunk) error
	Close() error
}

func openSource(format, path string, types []common.LType) (source, error) {
	switch format {
	case "csv":
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		reader := csv.NewReader(file)
		reader.FieldsPerRecord = -1
		reader.ReuseRecord = true
		return &csvSource{file: file, reader: reader}, nil
	case "parquet":
		file, err := pqLocal.NewLocalFileReader(path)
		if err != nil {
			return nil, err
		}
		reader, err := pqReader.NewParquetColumnReader(file, 1)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		if len(reader.SchemaHandler.ValueColumns) < len(types) {
			reader.ReadStop()
			_ = file.Close()
			return nil, errors.Newf("parquet file %s has %d columns, want %d",
				path, len(reader.SchemaHandler.ValueColumns), len(types))
		}
		return &parquetSource{file: file, reader: reader, left: reader.GetNumRows()}, nil
	default:
		return nil, errors.Newf("unsupported data format %q", format)
	}
}

type csvSource struct {
	file   *os.File
	reader *csv.Reader
	line   int
}

func (src *csvSource) next(output *chunk.Chunk) error {
	types := output.Types()
	rowCnt := 0
	for rowCnt < output.Cap() {
		line, err := src.reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		src.line++
		if len(line) < len(types) {
			return errors.Newf("csv line %d has %d fields, want %d", src.line, len(line), len(types))
		}
		for j, typ := range types {
			val, err := chunk.ParseValue(typ, line[j])
			if err != nil {
				return errors.Wrapf(err, "csv line %d field %d", src.line, j)
			}
			output.Data[j].SetValue(rowCnt, val)
		}
		rowCnt++
	}
	output.SetCard(rowCnt)
	return nil
}

func (src *csvSource) Close() error {
	return src.file.Close()
}

type parquetSource struct {
	file   pqSource.ParquetFile
	reader *pqReader.ParquetReader
	left   int64
}

func (src *parquetSource) next(output *chunk.Chunk) error {
	maxCnt := min(int64(output.Cap()), src.left)
	if maxCnt <= 0 {
		output.SetCard(0)
		return nil
	}
	rowCont := -1
	for j, vec := range output.Data {
		values, _, _, err := src.reader.ReadColumnByIndex(int64(j), maxCnt)
		if err != nil {
			return err
		}
		if rowCont < 0 {
			rowCont = len(values)
		} else if len(values) != rowCont {
			return errors.Newf("column %d has different count of values %d with previous columns %d", j, len(values), rowCont)
		}
		for i := range values {
			val, err := parquetColToValue(values[i], vec.Typ())
			if err != nil {
				return errors.Wrapf(err, "parquet column %d", j)
			}
			vec.SetValue(i, val)
		}
	}
	rowCont = max(rowCont, 0)
	src.left -= int64(rowCont)
	output.SetCard(rowCont)
	return nil
}

func (src *parquetSource) Close() error {
	src.reader.ReadStop()
	return src.file.Close()
}

// parquetColToValue converts one physical parquet value. Decimals are
// stored unscaled.
func parquetColToValue(field any, typ common.LType) (*chunk.Value, error) {
	if field == nil {
		return chunk.NullValue(typ), nil
	}
	val := &chunk.Value{Typ: typ}
	switch typ.Id {
	case common.LTID_INTEGER, common.LTID_BIGINT:
		switch v := field.(type) {
		case int32:
			val.I64 = int64(v)
		case int64:
			val.I64 = v
		default:
			return nil, errors.Newf("can not read %T as %s", field, typ)
		}
	case common.LTID_UBIGINT:
		switch v := field.(type) {
		case int32:
			val.U64 = uint64(uint32(v))
		case int64:
			val.U64 = uint64(v)
		default:
			return nil, errors.Newf("can not read %T as %s", field, typ)
		}
	case common.LTID_DOUBLE:
		switch v := field.(type) {
		case float32:
			val.F64 = float64(v)
		case float64:
			val.F64 = v
		default:
			return nil, errors.Newf("can not read %T as %s", field, typ)
		}
	case common.LTID_BOOLEAN:
		v, ok := field.(bool)
		if !ok {
			return nil, errors.Newf("can not read %T as %s", field, typ)
		}
		val.Bool = v
	case common.LTID_VARCHAR, common.LTID_BLOB:
		v, ok := field.(string)
		if !ok {
			return nil, errors.Newf("can not read %T as %s", field, typ)
		}
		val.Str = v
	case common.LTID_DECIMAL:
		var unscaled int64
		switch v := field.(type) {
		case int32:
			unscaled = int64(v)
		case int64:
			unscaled = v
		default:
			return nil, errors.Newf("can not read %T as %s", field, typ)
		}
		d, err := decimal.New(unscaled, typ.Scale)
		if err != nil {
			return nil, err
		}
		val.Str = d.String()
	default:
		return nil, errors.Newf("can not read parquet %s values", typ)
	}
	return val, nil
}
