package chunk

import (
	"fmt"
	"io"
	"strings"

	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/util"
)

type Chunk struct {
	Data  []*Vector
	Count int
	_Cap  int
}

func NewChunk(types []common.LType, cap int) *Chunk {
	c := &Chunk{}
	c.Init(types, cap)
	return c
}

func (c *Chunk) Init(types []common.LType, cap int) {
	c._Cap = cap
	c.Data = nil
	for _, lType := range types {
		c.Data = append(c.Data, NewFlatVector(lType, c._Cap))
	}
}

func (c *Chunk) Reset() {
	if len(c.Data) == 0 {
		return
	}
	for _, vec := range c.Data {
		vec.Reset()
	}
	c.Count = 0
}

func (c *Chunk) Cap() int {
	return c._Cap
}

func (c *Chunk) SetCard(count int) {
	util.AssertFunc(count <= c._Cap)
	c.Count = count
	for _, vec := range c.Data {
		if vec.PhyFormat().IsFlat() {
			vec.SetCount(count)
		}
	}
}

func (c *Chunk) Card() int {
	return c.Count
}

func (c *Chunk) ColumnCount() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

func (c *Chunk) Types() []common.LType {
	ret := make([]common.LType, 0, len(c.Data))
	for _, vec := range c.Data {
		ret = append(ret, vec.Typ())
	}
	return ret
}

// AppendRow writes one value per column after the last row.
func (c *Chunk) AppendRow(vals []*Value) {
	util.AssertFunc(len(vals) == c.ColumnCount())
	for i, val := range vals {
		c.Data[i].Append(val)
	}
	c.Count++
	c._Cap = max(c._Cap, c.Data[0].Cap())
}

// FromColumns wraps already filled vectors of equal length.
func FromColumns(cols ...*Vector) *Chunk {
	c := &Chunk{Data: cols}
	if len(cols) != 0 {
		c.Count = cols[0].Count()
		c._Cap = cols[0].Cap()
	}
	for _, col := range cols {
		util.AssertFunc(col.PhyFormat().IsConst() || col.Count() == c.Count)
	}
	return c
}

func (c *Chunk) SaveToWriter(w io.Writer) (err error) {
	rowCnt := c.Card()
	colCnt := c.ColumnCount()
	row := make([]string, colCnt)
	for i := 0; i < rowCnt; i++ {
		for j := 0; j < colCnt; j++ {
			row[j] = c.Data[j].GetValue(i).String()
		}
		_, err = fmt.Fprintln(w, strings.Join(row, "\t"))
		if err != nil {
			return err
		}
	}
	return nil
}
