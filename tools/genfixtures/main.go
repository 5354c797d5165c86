// Command genfixtures writes the tiny policy models used by the inference
// tests. The models follow the Godot RL Agents export layout: an "obs" input
// of shape (batch, 4), a "state_ins" input of shape (batch,), and the
// outputs "output" and "state_outs".
//
//	continuous.onnx: output = obs x W          float32 (batch, 2)
//	discrete.onnx:   output = argmax(obs x W)  int64   (batch, 1)
//	dynamic.onnx:    as continuous, but obs is declared (batch, features)
//	                 so wrong feature counts only fail inside the runtime
//
// All pass state_ins through as state_outs.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

// ONNX element types.
const (
	elemFloat = 1
	elemInt64 = 7
)

// AttributeProto.AttributeType INT
const attrInt = 2

// weights maps obs (4 features) to 2 logits: out0 = x0+x2, out1 = x1+x3.
var weights = []float32{
	1, 0,
	0, 1,
	1, 0,
	0, 1,
}

type dim struct {
	param string
	value int64
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func valueInfo(name string, elem int, dims ...dim) []byte {
	var shape []byte
	for _, d := range dims {
		var dm []byte
		if d.param != "" {
			dm = appendString(dm, 2, d.param)
		} else {
			dm = appendVarint(dm, 1, uint64(d.value))
		}
		shape = appendMessage(shape, 1, dm)
	}

	var tensorType []byte
	tensorType = appendVarint(tensorType, 1, uint64(elem))
	tensorType = appendMessage(tensorType, 2, shape)

	var typ []byte
	typ = appendMessage(typ, 1, tensorType)

	var vi []byte
	vi = appendString(vi, 1, name)
	vi = appendMessage(vi, 2, typ)
	return vi
}

func floatInitializer(name string, values []float32, dims ...int64) []byte {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}

	var t []byte
	for _, d := range dims {
		t = appendVarint(t, 1, uint64(d))
	}
	t = appendVarint(t, 2, elemFloat)
	t = appendString(t, 8, name)
	t = protowire.AppendTag(t, 9, protowire.BytesType)
	t = protowire.AppendBytes(t, raw)
	return t
}

func intAttribute(name string, v int64) []byte {
	var a []byte
	a = appendString(a, 1, name)
	a = appendVarint(a, 3, uint64(v))
	a = appendVarint(a, 20, attrInt)
	return a
}

func node(opType string, inputs, outputs []string, attrs ...[]byte) []byte {
	var n []byte
	for _, in := range inputs {
		n = appendString(n, 1, in)
	}
	for _, out := range outputs {
		n = appendString(n, 2, out)
	}
	n = appendString(n, 3, opType+"_"+outputs[0])
	n = appendString(n, 4, opType)
	for _, a := range attrs {
		n = appendMessage(n, 5, a)
	}
	return n
}

func model(name string, nodes [][]byte, features dim, actionElem int, actionDim int64) []byte {
	batch := dim{param: "batch"}

	var g []byte
	for _, n := range nodes {
		g = appendMessage(g, 1, n)
	}
	g = appendString(g, 2, name)
	g = appendMessage(g, 5, floatInitializer("W", weights, 4, 2))
	g = appendMessage(g, 11, valueInfo("obs", elemFloat, batch, features))
	g = appendMessage(g, 11, valueInfo("state_ins", elemFloat, batch))
	g = appendMessage(g, 12, valueInfo("output", actionElem, batch, dim{value: actionDim}))
	g = appendMessage(g, 12, valueInfo("state_outs", elemFloat, batch))

	var opset []byte
	opset = appendString(opset, 1, "")
	opset = appendVarint(opset, 2, 13)

	var m []byte
	m = appendVarint(m, 1, 8)
	m = appendString(m, 2, "genfixtures")
	m = appendMessage(m, 7, g)
	m = appendMessage(m, 8, opset)
	return m
}

func continuous() []byte {
	return model("continuous", [][]byte{
		node("MatMul", []string{"obs", "W"}, []string{"output"}),
		node("Identity", []string{"state_ins"}, []string{"state_outs"}),
	}, dim{value: 4}, elemFloat, 2)
}

func dynamic() []byte {
	return model("dynamic", [][]byte{
		node("MatMul", []string{"obs", "W"}, []string{"output"}),
		node("Identity", []string{"state_ins"}, []string{"state_outs"}),
	}, dim{param: "features"}, elemFloat, 2)
}

func discrete() []byte {
	return model("discrete", [][]byte{
		node("MatMul", []string{"obs", "W"}, []string{"logits"}),
		node("ArgMax", []string{"logits"}, []string{"output"},
			intAttribute("axis", 1), intAttribute("keepdims", 1)),
		node("Identity", []string{"state_ins"}, []string{"state_outs"}),
	}, dim{value: 4}, elemInt64, 1)
}

func main() {
	out := flag.String("out", "testdata", "output directory")
	flag.Parse()

	if err := os.MkdirAll(*out, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	files := map[string][]byte{
		"continuous.onnx": continuous(),
		"discrete.onnx":   discrete(),
		"dynamic.onnx":    dynamic(),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(*out, name), data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}
