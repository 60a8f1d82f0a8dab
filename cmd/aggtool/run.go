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
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/aggstate/pkg/aggregate"
	"github.com/daviszhen/aggstate/pkg/chunk"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/groupby"
	"github.com/daviszhen/aggstate/pkg/partial"
	"github.com/daviszhen/aggstate/pkg/util"
)

// job is one distributed group by over a data file. Shards aggregate
// their share of the chunks, exchange partials and a final aggregator
// merges them.
type job struct {
	run        util.RunOptions
	types      []common.LType
	groupTypes []common.LType
	specs      []*aggSpec
	aggs       []groupby.Aggregate
	codec      partial.Codec
	opts       groupby.Options
}

func newJob(cfg *util.Config, fac *aggregate.Factory) (*job, error) {
	ret := &job{
		run: cfg.Run,
		opts: groupby.Options{
			AlignStates:    cfg.Aggregate.AlignStates,
			ArenaChunkSize: cfg.Aggregate.ArenaChunkSize,
			CheckOwner:     true,
		},
	}
	if ret.opts.ArenaChunkSize <= 0 {
		ret.opts.ArenaChunkSize = util.DefaultArenaChunkSize
	}
	var err error
	ret.codec, err = partial.ParseCodec(cfg.Partial.Codec)
	if err != nil {
		return nil, err
	}
	ret.types, err = parseTypes(cfg.Run.Types)
	if err != nil {
		return nil, err
	}
	if len(ret.types) == 0 {
		return nil, errors.New("no input column types")
	}
	for _, col := range cfg.Run.GroupBy {
		if col < 0 || col >= len(ret.types) {
			return nil, errors.Newf("group by column %d out of %d", col, len(ret.types))
		}
		ret.groupTypes = append(ret.groupTypes, ret.types[col])
	}
	if len(cfg.Run.Aggregates) == 0 {
		return nil, errors.New("no aggregates")
	}
	for _, text := range cfg.Run.Aggregates {
		spec, err := parseAggSpec(text)
		if err != nil {
			return nil, err
		}
		agg, err := spec.bind(fac, ret.types)
		if err != nil {
			return nil, err
		}
		ret.specs = append(ret.specs, spec)
		ret.aggs = append(ret.aggs, agg)
	}
	return ret, nil
}

func (j *job) newAggregator() (*groupby.Aggregator, error) {
	return groupby.NewAggregator(j.groupTypes, j.run.GroupBy, j.aggs, j.opts)
}

func (j *job) shardCount() int {
	return max(j.run.Shards, 1)
}

// execute reads the input, runs the shards and writes the merged result
// to out.
func (j *job) execute(ctx context.Context, out io.Writer) error {
	src, err := openSource(j.run.DataFormat, j.run.DataPath, j.types)
	if err != nil {
		return err
	}
	defer src.Close()

	shards := j.shardCount()
	grp, gctx := errgroup.WithContext(ctx)
	queues := make([]chan *chunk.Chunk, shards)
	for i := range queues {
		queues[i] = make(chan *chunk.Chunk, 1)
	}
	partials := make([][]byte, shards)

	grp.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		for i := 0; ; i++ {
			data := chunk.NewChunk(j.types, util.DefaultVectorSize)
			err := src.next(data)
			if err != nil {
				return err
			}
			if data.Card() == 0 {
				return nil
			}
			select {
			case queues[i%shards] <- data:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	for i := 0; i < shards; i++ {
		grp.Go(func() error {
			buf, err := j.runShard(gctx, i, queues[i])
			partials[i] = buf
			return err
		})
	}
	err = grp.Wait()
	if err != nil {
		return err
	}
	return j.merge(partials, out)
}

// runShard aggregates the chunks of one queue and returns its partial.
func (j *job) runShard(ctx context.Context, shard int, queue <-chan *chunk.Chunk) ([]byte, error) {
	agg, err := j.newAggregator()
	if err != nil {
		return nil, err
	}
	defer agg.Close()
	rows := 0
	for data := range queue {
		if ctx.Err() != nil {
			continue
		}
		err = agg.AddChunk(data)
		if err != nil {
			return nil, errors.Wrapf(err, "shard %d", shard)
		}
		rows += data.Card()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	buf := &bytes.Buffer{}
	id, err := partial.Encode(buf, agg, j.codec)
	if err != nil {
		return nil, errors.Wrapf(err, "shard %d", shard)
	}
	util.Info("shard done",
		zap.Int("shard", shard),
		zap.Int("rows", rows),
		zap.Int("groups", agg.GroupCount()),
		zap.Stringer("batch", id),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (j *job) merge(partials [][]byte, out io.Writer) error {
	agg, err := j.newAggregator()
	if err != nil {
		return err
	}
	defer agg.Close()
	for i, data := range partials {
		_, err = partial.Decode(bytes.NewReader(data), agg)
		if err != nil {
			return errors.Wrapf(err, "partial of shard %d", i)
		}
	}
	result, err := agg.Finalize()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, strings.Join(j.headline(), "\t"))
	if err != nil {
		return err
	}
	return result.SaveToWriter(out)
}

func (j *job) headline() []string {
	ret := make([]string, 0, len(j.run.GroupBy)+len(j.specs))
	for _, col := range j.run.GroupBy {
		ret = append(ret, fmt.Sprintf("#%d", col))
	}
	for _, spec := range j.specs {
		ret = append(ret, spec.text)
	}
	return ret
}
