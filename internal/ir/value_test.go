package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Float(4.2)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := Object{"a": Int(1), "A": Int(2), "aa": Int(3), "aA": Int(4), "Aa": Int(5), "AA": Int(6)}
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestUnmarshalValueNumbers(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"i": 9007199254740993, "f": 1.5, "e": 1e3}`))
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Int(9007199254740993), obj["i"], "large integers keep full precision")
	assert.Equal(t, Float(1.5), obj["f"])
	assert.Equal(t, Float(1000), obj["e"], "exponent literals decode as floats")
}

func TestUnmarshalValueNull(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"n": null, "a": [null]}`))
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Null{}, obj["n"])
	assert.Equal(t, Array{Null{}}, obj["a"])
}

func TestObjectJSONRoundTrip(t *testing.T) {
	obj := NewObject(
		O("name", String("john")),
		O("tags", Array{String("a"), Bool(false)}),
		O("nested", Object{"score": Float(2.5)}),
	)

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"john","nested":{"score":2.5},"tags":["a",false]}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, Equal(obj, back))
}

func TestObjectUnmarshalRejectsNonObject(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`[1,2]`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected JSON object")
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Null{}, nil))
	assert.True(t, Equal(Array{Int(1)}, Array{Int(1)}))
	assert.False(t, Equal(Int(1), Float(1)), "int and float are distinct values")
	assert.False(t, Equal(Object{"a": Int(1)}, Object{"b": Int(1)}))
	assert.False(t, Equal(Array{Int(1)}, Array{Int(1), Int(2)}))
}

func TestToGoFromGo(t *testing.T) {
	v := Object{"a": Array{Int(1), Float(0.5), String("s"), Bool(true), Null{}}}
	back, err := FromGo(ToGo(v))
	require.NoError(t, err)
	assert.True(t, Equal(v, back))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "string", TypeName(String("x")))
	assert.Equal(t, "integer", TypeName(Int(1)))
	assert.Equal(t, "null", TypeName(nil))
	assert.Equal(t, "object", TypeName(Object{}))
}
