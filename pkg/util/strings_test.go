package util

import (
	"reflect"
	"testing"
)

func TestNaturalSort(t *testing.T) {
	in := []string{"model_10.onnx", "model_2.onnx", "model_1.onnx", "Model_3.onnx", "model_0.onnx"}
	NaturalSort(in)
	want := []string{"model_0.onnx", "model_1.onnx", "model_2.onnx", "Model_3.onnx", "model_10.onnx"}
	if !reflect.DeepEqual(in, want) {
		t.Fatalf("got %v, want %v", in, want)
	}
}

func TestNaturalLessLeadingZeros(t *testing.T) {
	if !NaturalLess("a1", "a01") {
		t.Fatalf("shorter digit run with equal value should sort first")
	}
	if NaturalLess("a2", "a2") {
		t.Fatalf("equal strings are not less")
	}
}

func TestParseIntDefault(t *testing.T) {
	if ParseIntDefault("", 7) != 7 || ParseIntDefault("x", 7) != 7 || ParseIntDefault("3", 7) != 3 {
		t.Fatalf("unexpected ParseIntDefault results")
	}
}
