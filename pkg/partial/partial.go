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

package partial

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daviszhen/aggstate/pkg/aggregate"
	"github.com/daviszhen/aggstate/pkg/common"
	"github.com/daviszhen/aggstate/pkg/groupby"
	"github.com/daviszhen/aggstate/pkg/util"
)

const (
	Magic   uint32 = 0x50474741
	Version uint16 = 1
)

// Header precedes the compressed groups of a partial result. It is
// never compressed so that a mismatch is detected before any state
// is read.
type Header struct {
	Version    uint16
	Codec      Codec
	BatchId    uuid.UUID
	GroupTypes []common.LType
	Signatures []string
}

func headerOf(agg *groupby.Aggregator, codec Codec, id uuid.UUID) *Header {
	hdr := &Header{
		Version:    Version,
		Codec:      codec,
		BatchId:    id,
		GroupTypes: agg.GroupTypes(),
	}
	for _, a := range agg.Aggregates() {
		hdr.Signatures = append(hdr.Signatures, aggregate.Signature(a.Func))
	}
	return hdr
}

func (hdr *Header) serialize(serial util.Serialize) error {
	err := util.Write[uint32](Magic, serial)
	if err != nil {
		return err
	}
	err = util.Write[uint16](hdr.Version, serial)
	if err != nil {
		return err
	}
	err = util.Write[uint8](uint8(hdr.Codec), serial)
	if err != nil {
		return err
	}
	err = util.WriteBytes(hdr.BatchId[:], serial)
	if err != nil {
		return err
	}
	err = util.Write[uint32](uint32(len(hdr.GroupTypes)), serial)
	if err != nil {
		return err
	}
	for _, typ := range hdr.GroupTypes {
		err = typ.Serialize(serial)
		if err != nil {
			return err
		}
	}
	err = util.Write[uint32](uint32(len(hdr.Signatures)), serial)
	if err != nil {
		return err
	}
	for _, sig := range hdr.Signatures {
		err = util.WriteString(sig, serial)
		if err != nil {
			return err
		}
	}
	return nil
}

func deserializeHeader(deserial util.Deserialize) (*Header, error) {
	var magic uint32
	err := util.Read[uint32](&magic, deserial)
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, errors.Newf("partial: bad magic %#x", magic)
	}
	hdr := &Header{}
	err = util.Read[uint16](&hdr.Version, deserial)
	if err != nil {
		return nil, err
	}
	if hdr.Version != Version {
		return nil, errors.Newf("partial: unsupported version %d", hdr.Version)
	}
	var codec uint8
	err = util.Read[uint8](&codec, deserial)
	if err != nil {
		return nil, err
	}
	hdr.Codec = Codec(codec)
	if hdr.Codec >= codecCount {
		return nil, errors.Newf("partial: unknown codec %d", codec)
	}
	id, err := util.ReadBytes(deserial)
	if err != nil {
		return nil, err
	}
	hdr.BatchId, err = uuid.FromBytes(id)
	if err != nil {
		return nil, errors.Wrap(err, "partial: batch id")
	}
	var cnt uint32
	err = util.Read[uint32](&cnt, deserial)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < cnt; i++ {
		typ, err := common.DeserializeLType(deserial)
		if err != nil {
			return nil, err
		}
		hdr.GroupTypes = append(hdr.GroupTypes, typ)
	}
	err = util.Read[uint32](&cnt, deserial)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < cnt; i++ {
		sig, err := util.ReadString(deserial)
		if err != nil {
			return nil, err
		}
		hdr.Signatures = append(hdr.Signatures, sig)
	}
	return hdr, nil
}

// check fails unless the partial can be merged into agg.
func (hdr *Header) check(agg *groupby.Aggregator) error {
	want := headerOf(agg, hdr.Codec, hdr.BatchId)
	if len(want.GroupTypes) != len(hdr.GroupTypes) {
		return errors.Newf("partial: %d group columns, expected %d", len(hdr.GroupTypes), len(want.GroupTypes))
	}
	for i, typ := range want.GroupTypes {
		if !typ.Equal(hdr.GroupTypes[i]) {
			return errors.Newf("partial: group column %d is %s, expected %s", i, hdr.GroupTypes[i], typ)
		}
	}
	if len(want.Signatures) != len(hdr.Signatures) {
		return aggregate.SignatureMismatch(
			fmt.Sprint(want.Signatures), fmt.Sprint(hdr.Signatures))
	}
	for i, sig := range want.Signatures {
		if sig != hdr.Signatures[i] {
			return aggregate.SignatureMismatch(sig, hdr.Signatures[i])
		}
	}
	return nil
}

// Encode writes the groups of agg as one partial result and returns
// its batch id.
func Encode(w io.Writer, agg *groupby.Aggregator, codec Codec) (uuid.UUID, error) {
	err := util.Trigger(util.FAULTS_SCOPE_PARTIAL, "partial.encode")
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	hdr := headerOf(agg, codec, id)
	bw := bufio.NewWriter(w)
	err = hdr.serialize(util.NewWriterSerialize(bw))
	if err != nil {
		return uuid.Nil, err
	}
	body, err := codec.compressor(bw)
	if err != nil {
		return uuid.Nil, err
	}
	err = agg.Serialize(util.NewWriterSerialize(body))
	if err != nil {
		return uuid.Nil, err
	}
	err = body.Close()
	if err != nil {
		return uuid.Nil, err
	}
	err = bw.Flush()
	if err != nil {
		return uuid.Nil, err
	}
	util.Debug("partial encode",
		zap.String("batch", id.String()),
		zap.String("codec", codec.String()),
		zap.Int("groups", agg.GroupCount()))
	return id, nil
}

// Decode reads one partial result written by Encode and merges it into
// agg. Signature mismatches are reported before any state is merged.
func Decode(r io.Reader, agg *groupby.Aggregator) (*Header, error) {
	br := bufio.NewReader(r)
	hdr, err := deserializeHeader(util.NewReaderDeserialize(br))
	if err != nil {
		return nil, err
	}
	err = hdr.check(agg)
	if err != nil {
		return nil, err
	}
	err = util.Trigger(util.FAULTS_SCOPE_PARTIAL, "partial.decode")
	if err != nil {
		return nil, err
	}
	body, err := hdr.Codec.decompressor(br)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	err = agg.DeserializeMerge(util.NewReaderDeserialize(body))
	if err != nil {
		return nil, errors.Wrapf(err, "partial: batch %s", hdr.BatchId)
	}
	util.Debug("partial decode",
		zap.String("batch", hdr.BatchId.String()),
		zap.String("codec", hdr.Codec.String()))
	return hdr, nil
}
