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

package aggregate

import (
	"fmt"

	"github.com/xlab/treeprint"
)

type nestedFunction interface {
	Nested() Function
}

// Describe renders fn and the functions it wraps as a tree.
func Describe(fn Function) string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("Aggregate: %s", fn.Name()))
	describe(tree, fn)
	return tree.String()
}

func describe(tree treeprint.Tree, fn Function) {
	tree.AddMetaNode("signature", Signature(fn))
	if fn.Bound() {
		tree.AddMetaNode("arguments", argumentsString(fn.Arguments()))
		tree.AddMetaNode("return", fn.ReturnType().String())
	}
	tree.AddMetaNode("state", fmt.Sprintf("size %d align %d trivial %v",
		fn.SizeOfData(), fn.AlignOfData(), fn.HasTrivialDestructor()))
	tree.AddMetaNode("final", fmt.Sprintf("%v", fn.CanBeFinal()))
	if wrapper, ok := fn.(nestedFunction); ok {
		nested := wrapper.Nested()
		describe(tree.AddBranch(fmt.Sprintf("nested: %s", nested.Name())), nested)
	}
}
